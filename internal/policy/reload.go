package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the policy file and swaps new snapshots into a Holder.
type Reloader struct {
	watcher *fsnotify.Watcher
	store   *Store
	holder  *Holder
	logger  *slog.Logger
}

// NewReloader creates a watcher on the directory holding the store's file.
// Watching the directory keeps the watch alive across atomic renames.
func NewReloader(store *Store, holder *Holder, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(store.Path())
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("policy: watch %q: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy: create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("policy: watch %q: %w", dir, err)
	}

	return &Reloader{
		watcher: watcher,
		store:   store,
		holder:  holder,
		logger:  logger,
	}, nil
}

// Reload re-reads the store and publishes the result.
func (r *Reloader) Reload() {
	p, hash := r.store.LoadWithHash()
	_, prev := r.holder.SnapshotWithHash()
	r.holder.Replace(p, hash)
	if prev != hash {
		r.logger.Info("policy reloaded", "path", r.store.Path(), "policy_hash", hash)
	}
}

// Run watches for file changes and reloads the policy. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	target := filepath.Clean(r.store.Path())
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, r.Reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("policy watcher error", "error", err)
		}
	}
}
