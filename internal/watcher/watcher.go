// Package watcher detects filesystem drift under a repository root —
// changes made outside the HTTP Surface, such as a collaborator
// editing files directly — and triggers a rescan once changes settle.
// It does not tell those changes apart from the engine's own writes:
// apart from temp files and forest.json, every event under the root
// counts toward a rescan.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/DSLitvinov/difference-engine/internal/logger"
)

// RescanFunc performs the actual rescan; normally Engine.Rescan.
type RescanFunc func() error

// Watcher wraps an fsnotify.Watcher with debounced rescan triggering.
type Watcher struct {
	fsWatcher     *fsnotify.Watcher
	root          string
	debounceDelay time.Duration
	rescan        RescanFunc

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New creates a Watcher over root. Call Start to add root's subtree and
// begin processing events.
func New(root string, debounceDelay time.Duration, rescan RescanFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher:     fsw,
		root:          root,
		debounceDelay: debounceDelay,
		rescan:        rescan,
		done:          make(chan struct{}),
	}, nil
}

// ignoredSuffixes names path fragments the watcher never reacts to —
// its own atomic-write temp files and forest.json, whose every write
// is already a direct consequence of a tracked mutation.
var ignoredSuffixes = []string{".tmp", "forest.json"}

func shouldIgnore(path string) bool {
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(path, suffix) || strings.Contains(path, ".tmp_") {
			return true
		}
	}
	return false
}

// Start walks root's subtree, adds every directory to the watch set
// (fsnotify does not watch recursively on its own), and begins the
// debounced event loop in a background goroutine.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.running = true
	go w.loop()
	return nil
}

// addTree adds root and every subdirectory beneath it to the fsnotify
// watch set. Missing directories are tolerated since the tree may not
// exist yet on a fresh repository.
func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if addErr := w.fsWatcher.Add(path); addErr != nil {
			logger.Warn("watcher: failed to watch directory %s: %v", path, addErr)
		}
		return nil
	})
}

// Stop closes the underlying fsnotify watcher and ends the event loop.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.done)
	w.running = false
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounceDelay)
	if !timer.Stop() {
		<-timer.C
	}
	dirty := false

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if shouldIgnore(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsWatcher.Add(event.Name); err != nil {
						logger.Warn("watcher: failed to watch new directory %s: %v", event.Name, err)
					}
				}
			}
			dirty = true
			timer.Reset(w.debounceDelay)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: fsnotify error: %v", err)

		case <-timer.C:
			if dirty {
				if err := w.rescan(); err != nil {
					logger.Warn("watcher: debounced rescan failed: %v", err)
				}
				dirty = false
			}

		case <-w.done:
			return
		}
	}
}
