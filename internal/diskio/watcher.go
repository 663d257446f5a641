package diskio

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher recursively watches the loose-layer directories (data,
// secondary, content) for filesystem changes and debounces them into
// a single "stale" signal on Changes(). The engine only ever needs
// "rebuild, something moved", so per-file event types are collapsed
// into one coalesced signal.
type Watcher struct {
	watcher  *fsnotify.Watcher
	changes  chan struct{}
	debounce time.Duration

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
}

// NewWatcher opens an fsnotify watcher with a default 250ms debounce.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		changes:  make(chan struct{}, 1),
		debounce: 250 * time.Millisecond,
	}
	go w.loop()
	return w, nil
}

// Watch adds recursive watches under each of roots. Missing or empty
// roots are skipped rather than erroring, since DataPath/SecondaryPath/
// ContentPath are each individually optional.
func (w *Watcher) Watch(roots ...string) error {
	for _, root := range roots {
		if root == "" {
			continue
		}
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if !info.IsDir() {
				return nil
			}
			return w.watcher.Add(path)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Changes delivers a signal each time the watched tree settles after a
// burst of events. The channel is buffered by one; callers that are
// still processing a prior signal when the next arrives simply see one
// coalesced wakeup rather than a backlog.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher and its debounce timer.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.scheduleSignal()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) scheduleSignal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.changes <- struct{}{}:
		default:
		}
	})
}
