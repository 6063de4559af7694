package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileQueue receives file change notifications
type FileQueue interface {
	Enqueue(path string)
	Forget(path string)
}

// Watcher feeds changes in a directory into a FileQueue
type Watcher struct {
	dir   string
	queue FileQueue
}

// NewWatcher creates a Watcher for the files directly inside dir
func NewWatcher(dir string, queue FileQueue) *Watcher {
	return &Watcher{dir: dir, queue: queue}
}

// Scan enqueues every regular file currently in the directory
func (w *Watcher) Scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			w.queue.Enqueue(filepath.Join(w.dir, entry.Name()))
		}
	}
	return nil
}

// Run scans the directory and then forwards file events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	if err := w.Scan(); err != nil {
		return err
	}

	log.Printf("Watching %s", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if isHidden(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.queue.Forget(event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.queue.Enqueue(event.Name)
	}
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return len(base) > 0 && base[0] == '.'
}
