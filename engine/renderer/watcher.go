package renderer

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher collects changes to technique files. Directories are watched rather than files so editors that save
// by replacing the file are still seen. Events are only queued here; the device applies them on its own thread.
type watcher struct {
	mu      sync.Mutex
	fs      *fsnotify.Watcher
	logger  *zap.Logger
	dirs    map[string]bool
	files   map[string]bool
	pending map[string]bool
	done    chan struct{}
}

func newWatcher(logger *zap.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &watcher{
		fs:      fw,
		logger:  logger,
		dirs:    make(map[string]bool),
		files:   make(map[string]bool),
		pending: make(map[string]bool),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.mark(filepath.Clean(ev.Name))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// mark queues path if it is a watched file.
func (w *watcher) mark(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		w.pending[path] = true
	}
}

// Watch adds a file to the watch set.
func (w *watcher) Watch(path string) error {
	abs := absPath(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.files[abs] = true
	return nil
}

// Take returns and clears the changed files, sorted.
func (w *watcher) Take() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	clear(w.pending)
	sort.Strings(out)
	return out
}

// Close stops the event pump.
func (w *watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}

// absPath is the key files are tracked by. Paths that cannot be made absolute are only cleaned.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
