package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/duomic/duomic-go/internal/models"
)

// Watcher reloads the config file when it changes and hands the desired
// device set to a sync callback. Startup seeding stays the caller's job;
// the watcher only covers later edits.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	sync    func([]models.Device)
}

// NewWatcher starts watching the directory containing path. If the
// watcher cannot be created the daemon degrades to static config with a
// warning; the returned Watcher is still safe to Close.
func NewWatcher(path string, sync func([]models.Device)) *Watcher {
	if path == "" {
		path = DefaultPath
	}
	w := &Watcher{path: path, sync: sync}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: could not create fsnotify watcher", "err", err)
		return w
	}
	w.watcher = fw

	// Watch the directory, not the file: editors replace config files,
	// and a watch on the old inode would go stale.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		slog.Warn("config: could not watch config dir", "path", path, "err", err)
	}

	go w.watchLoop()
	return w
}

// Close stops the file watcher.
func (w *Watcher) Close() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name == w.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				slog.Info("config: reloading", "path", w.path)
				w.sync(Load(w.path))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "err", err)
		}
	}
}
