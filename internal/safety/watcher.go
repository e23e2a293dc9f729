package safety

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the classifier when its rules file changes on disk.
// It watches the containing directory so editors that replace the file
// (write to temp + rename) are still caught.
type Watcher struct {
	fsw        *fsnotify.Watcher
	classifier *Classifier
	path       string
	logger     *slog.Logger
	done       chan struct{}
}

func NewWatcher(classifier *Classifier, path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		fsw:        fsw,
		classifier: classifier,
		path:       filepath.Clean(path),
		logger:     logger,
		done:       make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.classifier.Reload(); err != nil {
				w.logger.Error("safety rules reload failed, keeping previous rules",
					"path", w.path, "err", err)
				continue
			}
			w.logger.Info("safety rules reloaded", "path", w.path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("safety rules watcher error", "err", err)
		}
	}
}

func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
