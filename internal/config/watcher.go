package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// RosterWatcher watches a config file and re-reads the agent roster
// when it changes. Consumers receive the fresh roster on a callback.
type RosterWatcher struct {
	path     string
	onChange func([]AgentConfig)

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	started bool
}

// WatchRoster starts watching the config file at path. Each time the
// file is written, the roster is reloaded and passed to onChange.
// Reload failures are silently skipped; the previous roster stays in
// effect.
func WatchRoster(path string, onChange func([]AgentConfig)) (*RosterWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory rather than the file so editors that replace
	// the file (rename + create) don't break the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	rw := &RosterWatcher{
		path:     path,
		onChange: onChange,
		watcher:  watcher,
		done:     make(chan struct{}),
		started:  true,
	}
	go rw.loop()
	return rw, nil
}

func (rw *RosterWatcher) loop() {
	for {
		select {
		case <-rw.done:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(rw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFromPath(rw.path)
			if err != nil {
				continue
			}
			rw.onChange(cfg.Agents)
		case <-rw.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// Close stops the watcher.
func (rw *RosterWatcher) Close() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.started {
		return
	}
	rw.started = false
	close(rw.done)
	rw.watcher.Close()
}
