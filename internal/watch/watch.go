// Package watch reruns a callback when training data changes on disk. Dev
// convenience only: it rebuilds, it never restarts a serving instance.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce batches editor write bursts into one rebuild.
const DefaultDebounce = 500 * time.Millisecond

// Run watches dir (recursively) until ctx is done, invoking fn after each
// debounced burst of filesystem events.
func Run(ctx context.Context, dir string, debounce time.Duration, log zerolog.Logger, fn func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	addAll := func() error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.Add(path)
			}
			return nil
		})
	}
	if err := addAll(); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			log.Debug().Str("op", ev.Op.String()).Str("path", ev.Name).Msg("data change")
			if ev.Op.Has(fsnotify.Create) {
				// new subdirectory needs a watch too
				_ = addAll()
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		case <-fire:
			timer = nil
			fn()
		}
	}
}
