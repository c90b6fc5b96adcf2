package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	// Create temporary directory for tests
	tmpDir, err := os.MkdirTemp("", "reconcile-journal-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()

	t.Run("Create journal with custom directory", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, tmpDir, j.Dir())
	})

	t.Run("Create journal with default directory", func(t *testing.T) {
		j, err := New("")
		require.NoError(t, err)
		expectedDir := filepath.Join(os.TempDir(), "reconcile-journal")
		assert.Equal(t, expectedDir, j.Dir())
	})

	t.Run("Save and load entry", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		entry := &Entry{
			DocumentID:  "doc-123",
			GroupID:     "group-456",
			Status:      StatusCompleted,
			RunID:       "run-1",
			Facts:       4,
			Triplets:    6,
			Invalidated: 1,
		}

		// Save entry
		err = j.Save(ctx, entry)
		require.NoError(t, err)

		// Load entry
		loaded, err := j.Load(ctx, "doc-123")
		require.NoError(t, err)
		require.NotNil(t, loaded)

		assert.Equal(t, entry.DocumentID, loaded.DocumentID)
		assert.Equal(t, entry.GroupID, loaded.GroupID)
		assert.Equal(t, entry.Status, loaded.Status)
		assert.Equal(t, entry.Facts, loaded.Facts)
		assert.Equal(t, entry.Triplets, loaded.Triplets)
		assert.False(t, loaded.CreatedAt.IsZero())
	})

	t.Run("Load non-existent entry", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		loaded, err := j.Load(ctx, "never-ingested")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Delete entry", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		err = j.Save(ctx, &Entry{DocumentID: "doc-delete", GroupID: "group-456", Status: StatusCompleted})
		require.NoError(t, err)

		err = j.Delete(ctx, "doc-delete")
		require.NoError(t, err)

		loaded, err := j.Load(ctx, "doc-delete")
		require.NoError(t, err)
		assert.Nil(t, loaded)

		// Deleting again is not an error
		err = j.Delete(ctx, "doc-delete")
		require.NoError(t, err)
	})

	t.Run("Record completed", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		err = j.RecordCompleted(ctx, "doc-done", "group-456", "run-7", 3, 5, 2)
		require.NoError(t, err)

		done, err := j.IsCompleted(ctx, "doc-done")
		require.NoError(t, err)
		assert.True(t, done)

		loaded, err := j.Load(ctx, "doc-done")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, loaded.Status)
		assert.Equal(t, "run-7", loaded.RunID)
		assert.Equal(t, 3, loaded.Facts)
		assert.Equal(t, 5, loaded.Triplets)
		assert.Equal(t, 2, loaded.Invalidated)
	})

	t.Run("Record failure increments attempts", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		err = j.RecordFailure(ctx, "doc-flaky", "group-456", "run-8", assert.AnError)
		require.NoError(t, err)
		err = j.RecordFailure(ctx, "doc-flaky", "group-456", "run-9", assert.AnError)
		require.NoError(t, err)

		loaded, err := j.Load(ctx, "doc-flaky")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, loaded.Status)
		assert.Equal(t, 2, loaded.AttemptCount)
		assert.Contains(t, loaded.LastError, "assert.AnError")

		done, err := j.IsCompleted(ctx, "doc-flaky")
		require.NoError(t, err)
		assert.False(t, done)
	})

	t.Run("Completion clears failure state", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		err = j.RecordFailure(ctx, "doc-retry", "group-456", "run-10", assert.AnError)
		require.NoError(t, err)
		err = j.RecordCompleted(ctx, "doc-retry", "group-456", "run-11", 1, 1, 0)
		require.NoError(t, err)

		loaded, err := j.Load(ctx, "doc-retry")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, loaded.Status)
		assert.Empty(t, loaded.LastError)
		// The attempt history survives completion
		assert.Equal(t, 1, loaded.AttemptCount)
	})

	t.Run("List entries", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			err = j.Save(ctx, &Entry{
				DocumentID: fmt.Sprintf("doc-list-%d", i),
				GroupID:    "group-456",
				Status:     StatusCompleted,
			})
			require.NoError(t, err)
		}

		entries, err := j.List(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(entries), 3)
	})

	t.Run("Find failed respects attempt cap", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		err = j.RecordFailure(ctx, "doc-once", "group-456", "run-12", assert.AnError)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			err = j.RecordFailure(ctx, "doc-thrice", "group-456", "run-13", assert.AnError)
			require.NoError(t, err)
		}

		failed, err := j.FindFailed(ctx, 3)
		require.NoError(t, err)

		ids := make([]string, 0, len(failed))
		for _, e := range failed {
			ids = append(ids, e.DocumentID)
		}
		assert.Contains(t, ids, "doc-once")
		assert.NotContains(t, ids, "doc-thrice")
	})

	t.Run("Clean old entries", func(t *testing.T) {
		j, err := New(tmpDir)
		require.NoError(t, err)

		// Create old entry - manually write with old timestamp
		oldTime := time.Now().Add(-48 * time.Hour)
		oldEntry := &Entry{
			DocumentID:    "doc-old",
			GroupID:       "group-456",
			Status:        StatusCompleted,
			CreatedAt:     oldTime,
			LastUpdatedAt: oldTime,
		}
		// Manually write to preserve old timestamp
		data, err := json.MarshalIndent(oldEntry, "", "  ")
		require.NoError(t, err)
		oldPath, err := j.Path("doc-old")
		require.NoError(t, err)
		err = os.WriteFile(oldPath, data, 0644)
		require.NoError(t, err)

		err = j.Save(ctx, &Entry{DocumentID: "doc-fresh", GroupID: "group-456", Status: StatusCompleted})
		require.NoError(t, err)

		removed, err := j.CleanOld(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, 1)

		loaded, err := j.Load(ctx, "doc-old")
		require.NoError(t, err)
		assert.Nil(t, loaded)

		loaded, err = j.Load(ctx, "doc-fresh")
		require.NoError(t, err)
		assert.NotNil(t, loaded)
	})
}

func TestPathTraversalPrevention(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "reconcile-journal-security-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	j, err := New(tmpDir)
	require.NoError(t, err)

	// Create a sensitive file outside the journal directory to verify it can't be accessed
	sensitiveFile := filepath.Join(tmpDir, "..", "sensitive.txt")
	err = os.WriteFile(sensitiveFile, []byte("sensitive data"), 0644)
	require.NoError(t, err)
	defer os.Remove(sensitiveFile)

	pathTraversalAttempts := []struct {
		name       string
		documentID string
	}{
		{"simple path traversal", "../../../etc/passwd"},
		{"path traversal with dots", ".."},
		{"double traversal", "foo/../.."},
		{"forward slash", "foo/bar"},
		{"backslash", `foo\bar`},
		{"null byte", "doc\x00.json"},
		{"hidden file traversal", "../.hidden"},
		{"absolute path attempt", "/etc/passwd"},
		{"windows path", `C:\Windows\System32`},
		{"empty ID", ""},
	}

	for _, tc := range pathTraversalAttempts {
		t.Run("Path_"+tc.name, func(t *testing.T) {
			_, err := j.Path(tc.documentID)
			assert.ErrorIs(t, err, ErrInvalidDocumentID, "Document ID %q should be rejected", tc.documentID)
		})

		t.Run("Load_"+tc.name, func(t *testing.T) {
			_, err := j.Load(ctx, tc.documentID)
			assert.Error(t, err, "Load should reject document ID %q", tc.documentID)
		})

		t.Run("Delete_"+tc.name, func(t *testing.T) {
			err := j.Delete(ctx, tc.documentID)
			assert.Error(t, err, "Delete should reject document ID %q", tc.documentID)
		})

		t.Run("Save_"+tc.name, func(t *testing.T) {
			err := j.Save(ctx, &Entry{DocumentID: tc.documentID, GroupID: "test-group", Status: StatusFailed})
			assert.Error(t, err, "Save should reject document ID %q", tc.documentID)
		})
	}

	// Test that valid document IDs still work
	validIDs := []string{
		"doc-123",
		"my_document",
		"Document.With.Dots",
		"doc-2024-01-15T10:30:00Z",
		"abc123def456",
		"a",
	}

	for _, id := range validIDs {
		t.Run("valid_ID_"+id, func(t *testing.T) {
			path, err := j.Path(id)
			require.NoError(t, err, "Valid document ID %q should be accepted", id)
			assert.Contains(t, path, id, "Path should contain the document ID")
		})
	}
}
