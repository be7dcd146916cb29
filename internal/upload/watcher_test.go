package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcher_EnqueuesNewFiles(t *testing.T) {
	dir := t.TempDir()
	q := newTestQueue(QueueConfig{})
	w := NewWatcher(dir, q, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "access.log")
	require.NoError(t, os.WriteFile(path, []byte("line\n"), 0o644))

	assert.Eventually(t, func() bool {
		task := q.Dequeue()
		if task == nil {
			return false
		}
		assert.Equal(t, path, task.FilePath)
		assert.NotEmpty(t, task.UploadID)
		return true
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcher_IgnoresDotfiles(t *testing.T) {
	dir := t.TempDir()
	q := newTestQueue(QueueConfig{})
	w := NewWatcher(dir, q, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Nil(t, q.Dequeue())
}

func TestWatcher_MissingDirectory(t *testing.T) {
	q := newTestQueue(QueueConfig{})
	w := NewWatcher("/nonexistent/spool", q, zap.NewNop())
	err := w.Run(context.Background())
	require.Error(t, err)
}
