// Package telemetry captures error-level log records into Parquet files so
// long reconciliation runs leave an analyzable trail of what failed, keyed
// by run, document and group.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// Attribute keys promoted to their own Parquet columns.
const (
	AttrRunID      = "run_id"
	AttrDocumentID = "document_id"
	AttrGroupID    = "group_id"
)

// LogRecord represents a single log entry for Parquet storage
type LogRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp"`
	Level      string    `parquet:"level"`
	Message    string    `parquet:"message"`
	RunID      string    `parquet:"run_id"`
	DocumentID string    `parquet:"document_id"`
	GroupID    string    `parquet:"group_id"`
	SourceFile string    `parquet:"source_file"`
	LineNumber int       `parquet:"line_number"`
	Attributes string    `parquet:"attributes"` // JSON string
}

// buffer is shared between a handler and its WithAttrs/WithGroup clones so
// batching spans the whole logger tree.
type buffer struct {
	mu      sync.Mutex
	records []LogRecord
}

// ParquetHandler is a slog.Handler that writes error logs to Parquet files
// while forwarding every record to the wrapped handler.
type ParquetHandler struct {
	next      slog.Handler
	outputDir string
	buf       *buffer
	batchSize int
	bound     []slog.Attr
}

var _ slog.Handler = (*ParquetHandler)(nil)

// NewParquetHandler creates a handler writing error records under outputDir.
func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	h := &ParquetHandler{
		next:      next,
		outputDir: outputDir,
		batchSize: 100,
		buf:       &buffer{records: make([]LogRecord, 0, 100)},
	}

	return h, nil
}

// Enabled implements slog.Handler
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always pass to next handler first
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	// Only errors are captured
	if r.Level < slog.LevelError {
		return nil
	}

	record := LogRecord{
		ID:        uuid.New().String(),
		Timestamp: r.Time.UTC(),
		Level:     r.Level.String(),
		Message:   r.Message,
	}

	// Correlation ids can arrive bound on the logger or on the record.
	attrs := make(map[string]interface{})
	collect := func(a slog.Attr) {
		v := a.Value.Resolve()
		switch a.Key {
		case AttrRunID:
			record.RunID = v.String()
		case AttrDocumentID:
			record.DocumentID = v.String()
		case AttrGroupID:
			record.GroupID = v.String()
		default:
			attrs[a.Key] = v.Any()
		}
	}
	for _, a := range h.bound {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	attrsJSON, _ := json.Marshal(attrs)
	record.Attributes = string(attrsJSON)

	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		record.SourceFile = f.File
		record.LineNumber = f.Line
	}

	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()

	h.buf.records = append(h.buf.records, record)

	if len(h.buf.records) >= h.batchSize {
		return h.flushLocked()
	}

	return nil
}

// Flush writes any buffered records to a new Parquet file.
func (h *ParquetHandler) Flush() error {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	return h.flushLocked()
}

// Close flushes outstanding records. The wrapped handler is not closed.
func (h *ParquetHandler) Close() error {
	return h.Flush()
}

// flushLocked writes the current buffer to a new Parquet file.
// Caller must hold the lock.
func (h *ParquetHandler) flushLocked() error {
	if len(h.buf.records) == 0 {
		return nil
	}

	filename := fmt.Sprintf("run_errors_%s_%d.parquet", time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(h.outputDir, filename)

	if err := parquet.WriteFile(path, h.buf.records); err != nil {
		return fmt.Errorf("failed to write telemetry parquet file: %w", err)
	}

	h.buf.records = h.buf.records[:0]
	return nil
}

// WithAttrs implements slog.Handler. Clones share the parent's buffer so
// batching and flushing cover the whole logger tree.
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithAttrs(attrs),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		buf:       h.buf,
		bound:     append(append([]slog.Attr{}, h.bound...), attrs...),
	}
}

// WithGroup implements slog.Handler
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithGroup(name),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		buf:       h.buf,
		bound:     h.bound,
	}
}
