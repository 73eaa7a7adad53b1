package entitlement

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the entitlement store file for external modifications
// (the analog of storage change events in the extension) and notifies the
// owning service so cached views can be refreshed.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func()
	mu       sync.RWMutex
	stopped  bool
}

// NewWatcher creates a watcher for the store file at path.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  watcher,
		stopChan: make(chan struct{}),
		onChange: onChange,
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself because atomic rename-based writes replace the inode.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.loop()
	log.Debug().Str("path", w.path).Msg("Watching entitlement store for changes")
	return nil
}

func (w *Watcher) loop() {
	// Debounce rapid write+rename sequences into one notification.
	var debounce *time.Timer
	const debounceDelay = 200 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				log.Debug().Str("path", w.path).Msg("Entitlement store changed on disk")
				if w.onChange != nil {
					w.onChange()
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Entitlement store watcher error")

		case <-w.stopChan:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) matches(name string) bool {
	return strings.EqualFold(filepath.Clean(name), w.path)
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopChan)
	_ = w.watcher.Close()
}
