package detectors

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"mcpsentry/pkg/logger"
)

// WatchCustomFile reloads the scanner's custom pattern file whenever it
// changes on disk. Reload events are throttled so editors that write in
// several bursts trigger a single reload.
func (s *Scanner) WatchCustomFile(ctx context.Context, path string) error {
	if err := s.LoadCustomFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go s.watchLoop(ctx, watcher, path)
	return watcher.Add(path)
}

func (s *Scanner) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()

	log := logger.NewLogger(logrus.InfoLevel)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var mu sync.Mutex
	reloadPending := false

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				mu.Lock()
				reloadPending = true
				mu.Unlock()
			}

		case <-ticker.C:
			mu.Lock()
			pending := reloadPending
			reloadPending = false
			mu.Unlock()

			if pending {
				if err := s.LoadCustomFile(path); err != nil {
					log.Error("Failed to reload pattern file", logger.Fields{"error": err, "file": path})
				} else {
					log.Info("Reloaded sensitive patterns", logger.Fields{"file": path, "patterns": s.PatternCount()})
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error("Pattern file watcher error", logger.Fields{"error": err, "file": path})

		case <-ctx.Done():
			log.Info("Stopping pattern file watcher", logger.Fields{"file": path})
			return
		}
	}
}
