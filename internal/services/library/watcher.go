package library

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher imports funscript files dropped into a directory. File events are
// debounced so a file still being written imports once, after it settles.
// Removing a watched file does not delete its library row.
type Watcher struct {
	library  *Service
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	fw       *fsnotify.Watcher
	stopOnce sync.Once
	stopChan chan struct{}
	now      func() time.Time
}

// NewWatcher creates a watcher over dir feeding the given library.
func NewWatcher(library *Service, dir string, debounce time.Duration) *Watcher {
	return &Watcher{
		library:  library,
		dir:      dir,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins watching. The directory must already exist.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fw = fw
	go w.loop()
	log.Printf("Library: watching %s for funscript files", w.dir)
	return nil
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if w.fw != nil {
			w.fw.Close()
		}
	})
}

func (w *Watcher) loop() {
	flushEvery := w.debounce / 2
	if flushEvery <= 0 {
		flushEvery = 10 * time.Millisecond
	}
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("Library: watcher error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent notes a create or write; the import happens once the file has
// been quiet for the debounce window.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".funscript") {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = w.now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	now := w.now()
	var due []string
	w.mu.Lock()
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range due {
		if _, err := w.library.ImportFile(context.Background(), path); err != nil {
			log.Printf("Library: import of %s failed: %v", path, err)
			continue
		}
		log.Printf("Library: imported %s", path)
	}
}
