package lua

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads scripts of a Checker when files in the plugins directory change.
// Events are debounced, a file is reloaded once it stays unchanged for the debounce period.
type Watcher struct {
	checker  *Checker
	dir      string
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // file -> time of last event
	done    chan struct{}
	started bool
}

// NewWatcher makes a Watcher for the plugins directory.
func NewWatcher(checker *Checker, dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		checker:  checker,
		dir:      dir,
		fsw:      fsw,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching, repeated calls are no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if st, err := os.Stat(w.dir); err != nil || !st.IsDir() {
		return fmt.Errorf("plugins directory %s does not exist", w.dir)
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch plugins directory: %w", err)
	}
	w.started = true
	log.Printf("[INFO] watching lua plugins in %s", w.dir)
	go w.loop()
	return nil
}

// Stop terminates watching.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	close(w.done)
	if err := w.fsw.Close(); err != nil {
		log.Printf("[WARN] failed to close plugins watcher: %v", err)
	}
	w.started = false
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".lua" {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending[ev.Name] = time.Now()
				w.mu.Unlock()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[WARN] plugins watcher error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// flush applies pending changes older than the debounce period
func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for file, ts := range w.pending {
		if time.Since(ts) < w.debounce {
			continue
		}
		delete(w.pending, file)
		if _, err := os.Stat(file); os.IsNotExist(err) {
			log.Printf("[INFO] lua script removed: %s", file)
			w.checker.RemoveScript(file)
			continue
		}
		log.Printf("[INFO] reloading lua script: %s", file)
		if err := w.checker.ReloadScript(file); err != nil {
			log.Printf("[WARN] failed to reload lua script %s: %v", file, err)
		}
	}
}
