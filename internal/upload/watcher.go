package upload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Watcher enqueues a task for every log file dropped into a spool
// directory. It stands in for the external upload service in deployments
// where files arrive over a shared volume.
type Watcher struct {
	dir    string
	queue  *Queue
	logger *zap.Logger
}

// NewWatcher creates a spool directory watcher.
func NewWatcher(dir string, queue *Queue, logger *zap.Logger) *Watcher {
	return &Watcher{dir: dir, queue: queue, logger: logger}
}

// Run watches the spool directory until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching spool directory", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue // skip dotfiles and partial uploads
			}
			task := NewTask(uuid.New().String(), event.Name)
			w.queue.Enqueue(task)
			w.logger.Info("spooled file enqueued",
				zap.String("file", event.Name), zap.String("upload_id", task.UploadID))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}
