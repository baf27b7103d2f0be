// Package ingest feeds WAV files dropped into a watched directory through
// the full recording pipeline, as if they had been captured live.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/meetingbox/meetingbox/internal/audio"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/internal/session"
)

// Watcher monitors the ingest directory for new WAV files.
type Watcher struct {
	dir        string
	frameBytes int
	machine    *session.Machine
	logger     logger.Logger
	watcher    *fsnotify.Watcher
}

// New creates a Watcher over dir. The directory must exist.
func New(dir string, frameBytes int, machine *session.Machine, log logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	return &Watcher{
		dir:        dir,
		frameBytes: frameBytes,
		machine:    machine,
		logger:     log,
		watcher:    fsw,
	}, nil
}

// Start blocks, handling file events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info(ctx, "Ingest watcher started. Monitoring: %s", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Ingest watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if !isWAVFile(event.Name) {
				w.logger.Debug(ctx, "Ignoring non-wav file: %s", event.Name)
				continue
			}

			w.logger.Info(ctx, "New recording detected: %s", event.Name)

			// Small delay to ensure file is fully written
			time.Sleep(500 * time.Millisecond)

			if err := w.handle(ctx, event.Name); err != nil {
				w.logger.Error(ctx, "Failed to ingest %s: %v", event.Name, err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

// Stop closes the underlying file watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// handle replays one WAV file as a session. The session completes on its own
// once the file's frame stream hits EOF and the queue drains.
func (w *Watcher) handle(ctx context.Context, path string) error {
	src, err := audio.NewFileSource(path, w.frameBytes)
	if err != nil {
		return err
	}

	id, err := w.machine.StartWithSource(src)
	if err != nil {
		return fmt.Errorf("start ingest session: %w", err)
	}

	w.logger.Info(ctx, "Ingesting %s as session %s", filepath.Base(path), id)
	return nil
}

func isWAVFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".wav"
}
