package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports changes to the cached export file. Editors and
// exporters often write in bursts, so events are coalesced for a short
// settle period before onChange runs.
type Watcher struct {
	path     string
	settle   time.Duration
	onChange func(ctx context.Context)
	log      zerolog.Logger
}

// NewWatcher watches path and calls onChange after it changes.
func NewWatcher(path string, onChange func(ctx context.Context), log zerolog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		settle:   500 * time.Millisecond,
		onChange: onChange,
		log:      log.With().Str("component", "SnapshotWatcher").Logger(),
	}
}

// Start watches the file's directory until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(w.settle)
				} else {
					timer.Reset(w.settle)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				w.log.Info().Str("file", w.path).Msg("Snapshot changed")
				w.onChange(ctx)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("Watcher error")
			}
		}
	}()
	w.log.Info().Str("file", w.path).Msg("Watching snapshot")
	return nil
}
