package policy

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads a standalone policy file into a Store. A reload that
// fails to parse keeps the previous policy in place, so the running process
// never observes a broken or partial policy.
type Watcher struct {
	path   string
	store  *Store
	logger *zap.Logger
	fsw    *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given policy file.
func NewWatcher(path string, store *Store, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory rather than the file itself: editors and config
	// management tools typically replace the file via rename, which would
	// otherwise drop the watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:   path,
		store:  store,
		logger: logger.Named("policy_watcher"),
		fsw:    fsw,
	}, nil
}

// Run processes file events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Policy watcher error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := loadFile(w.path)
	if err != nil {
		w.logger.Error("Policy reload failed, keeping previous policy", zap.Error(err))
		return
	}
	next, err := New(*cfg)
	if err != nil {
		w.logger.Error("Policy reload rejected, keeping previous policy", zap.Error(err))
		return
	}
	w.store.Swap(next)
	w.logger.Info("Policy reloaded",
		zap.Int("allowed", len(next.AllowedOperations())),
		zap.Int("restricted", len(next.RestrictedOperations())),
		zap.Bool("require_confirmation", next.RequireConfirmation),
		zap.Bool("dry_run_default", next.DryRunDefault))
}
