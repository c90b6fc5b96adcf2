// Package journal tracks which documents of an ingestion run have been
// fully reconciled. Each batch commits its own transaction, so after a
// crash the journal tells a resumed run which documents to skip.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidDocumentID is returned when a document ID contains invalid characters
var ErrInvalidDocumentID = errors.New("invalid document ID: contains path traversal or invalid characters")

// Status marks how far a document's batch got.
type Status string

const (
	// StatusCompleted means the batch's transaction committed.
	StatusCompleted Status = "completed"
	// StatusFailed means the last attempt errored before committing.
	StatusFailed Status = "failed"
)

// Entry is the per-document journal record.
type Entry struct {
	DocumentID string `json:"document_id"`
	GroupID    string `json:"group_id"`
	Status     Status `json:"status"`

	// RunID is the run that produced the current status.
	RunID string `json:"run_id,omitempty"`

	// Counts from the committed batch.
	Facts       int `json:"facts"`
	Triplets    int `json:"triplets"`
	Invalidated int `json:"invalidated"`

	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Journal persists per-document entries as JSON files in a directory.
type Journal struct {
	dir string
}

// New creates a journal rooted at dir.
// If dir is empty, uses os.TempDir()/reconcile-journal.
func New(dir string) (*Journal, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "reconcile-journal")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	return &Journal{dir: dir}, nil
}

// validateDocumentID checks that the document ID is safe for use in file paths.
// It rejects IDs containing path separators, path traversal sequences, or null bytes.
func validateDocumentID(documentID string) error {
	if documentID == "" {
		return ErrInvalidDocumentID
	}
	if strings.Contains(documentID, "..") {
		return ErrInvalidDocumentID
	}
	if strings.ContainsAny(documentID, `/\`) {
		return ErrInvalidDocumentID
	}
	if strings.ContainsRune(documentID, '\x00') {
		return ErrInvalidDocumentID
	}
	return nil
}

// isPathWithinDirectory checks that the resolved path is within the expected
// directory. This provides defense-in-depth against path traversal attacks.
func isPathWithinDirectory(path, directory string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(directory)

	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}

	return strings.HasPrefix(cleanPath, cleanDir) || cleanPath == filepath.Clean(directory)
}

// Path returns the file path for a document's journal entry.
// Returns an error if the document ID contains invalid characters or path
// traversal sequences.
func (j *Journal) Path(documentID string) (string, error) {
	if err := validateDocumentID(documentID); err != nil {
		return "", err
	}

	fullPath := filepath.Join(j.dir, fmt.Sprintf("document_%s.json", documentID))
	if !isPathWithinDirectory(fullPath, j.dir) {
		return "", ErrInvalidDocumentID
	}

	return fullPath, nil
}

// Save persists the entry to disk atomically.
func (j *Journal) Save(ctx context.Context, entry *Entry) error {
	entry.LastUpdatedAt = time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.LastUpdatedAt
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	path, err := j.Path(entry.DocumentID)
	if err != nil {
		return err
	}

	// Write to a temporary file first, then rename for atomic write
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write journal file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename journal file: %w", err)
	}

	return nil
}

// Load retrieves a document's entry, or nil when the document has no entry.
func (j *Journal) Load(ctx context.Context, documentID string) (*Entry, error) {
	path, err := j.Path(documentID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
	}

	return &entry, nil
}

// Delete removes a document's entry. Deleting an absent entry is not an
// error.
func (j *Journal) Delete(ctx context.Context, documentID string) error {
	path, err := j.Path(documentID)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete journal file: %w", err)
	}

	return nil
}

// IsCompleted reports whether the document's batch already committed.
func (j *Journal) IsCompleted(ctx context.Context, documentID string) (bool, error) {
	entry, err := j.Load(ctx, documentID)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Status == StatusCompleted, nil
}

// RecordCompleted marks a document as committed, recording what the batch
// wrote.
func (j *Journal) RecordCompleted(ctx context.Context, documentID, groupID, runID string, facts, triplets, invalidated int) error {
	entry, err := j.Load(ctx, documentID)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &Entry{DocumentID: documentID, GroupID: groupID}
	}

	entry.Status = StatusCompleted
	entry.RunID = runID
	entry.Facts = facts
	entry.Triplets = triplets
	entry.Invalidated = invalidated
	entry.LastError = ""

	return j.Save(ctx, entry)
}

// RecordFailure marks a document's last attempt as failed and counts it.
func (j *Journal) RecordFailure(ctx context.Context, documentID, groupID, runID string, cause error) error {
	entry, err := j.Load(ctx, documentID)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &Entry{DocumentID: documentID, GroupID: groupID}
	}

	entry.Status = StatusFailed
	entry.RunID = runID
	entry.AttemptCount++
	if cause != nil {
		entry.LastError = cause.Error()
	}

	return j.Save(ctx, entry)
}

// List returns every entry in the journal directory.
func (j *Journal) List(ctx context.Context) ([]*Entry, error) {
	dirEntries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var entries []*Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		// Only process .json files, skip .tmp files
		if filepath.Ext(de.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(j.dir, de.Name()))
		if err != nil {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// FindFailed returns entries whose last attempt failed and that have been
// tried fewer than maxAttempts times. maxAttempts <= 0 means no bound.
func (j *Journal) FindFailed(ctx context.Context, maxAttempts int) ([]*Entry, error) {
	entries, err := j.List(ctx)
	if err != nil {
		return nil, err
	}

	var failed []*Entry
	for _, e := range entries {
		if e.Status != StatusFailed {
			continue
		}
		if maxAttempts > 0 && e.AttemptCount >= maxAttempts {
			continue
		}
		failed = append(failed, e)
	}
	return failed, nil
}

// CleanOld removes entries older than the specified duration. Returns how
// many were removed.
func (j *Journal) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := j.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.LastUpdatedAt.Before(cutoff) {
			if err := j.Delete(ctx, e.DocumentID); err != nil {
				continue
			}
			removed++
		}
	}

	return removed, nil
}

// Dir returns the journal directory path.
func (j *Journal) Dir() string {
	return j.dir
}
