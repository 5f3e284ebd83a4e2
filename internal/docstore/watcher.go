package docstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch follows the database files at dbPath for writes made by other
// processes and wakes every live query so it re-reads. It blocks until ctx
// is cancelled. Writes made through this Store also trigger a wake-up; the
// extra snapshot is identical and harmless.
func (s *Store) Watch(ctx context.Context, dbPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	watched := map[string]struct{}{
		abs:          {},
		abs + "-wal": {},
	}

	s.logger.Info("docstore watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("docstore watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			s.logger.Debug("docstore watcher: external change")
			s.feed.Publish(allCollections)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, hit := watched[ev.Name]; !hit {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("docstore watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
