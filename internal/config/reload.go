package config

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long to wait after the last write before
// reloading, so editors that write in several steps trigger one reload.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches the config file and delivers freshly parsed
// configs to a callback.
type Reloader struct {
	path    string
	onApply func(*Config)
}

// NewReloader creates a reloader for the given config path. onApply is
// called with each successfully reloaded config.
func NewReloader(path string, onApply func(*Config)) *Reloader {
	return &Reloader{path: path, onApply: onApply}
}

// Run watches for file changes and reloads. Blocks until ctx is
// cancelled. A config that fails to parse is logged and skipped; the
// previous config stays in effect.
func (r *Reloader) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.path); err != nil {
		return err
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config watch: %v", err)

		case <-reload:
			cfg, err := Load(r.path)
			if err != nil {
				log.Printf("config reload: %v", err)
				continue
			}
			log.Printf("config reloaded from %s", r.path)
			r.onApply(cfg)
		}
	}
}
