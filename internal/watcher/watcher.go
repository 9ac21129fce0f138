// Package watcher watches directory trees and reports debounced batches of
// changes. serve points it at the frontend build and the template directory
// to drive live reload. A template edit reloads connected browsers, but the
// template cache keeps serving the version it parsed first.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/darkone23/langnet-web/internal/logging"
)

// DefaultDelay is how long the watcher waits for a burst of writes to settle.
const DefaultDelay = 150 * time.Millisecond

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles file change events
type ChangeHandler func(events []ChangeEvent) error

// FileWatcher watches directory trees and hands debounced batches of
// events to its handlers.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	delay   time.Duration
	logger  logging.Logger

	mutex    sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler
}

// NewFileWatcher creates a watcher with the given debounce delay.
func NewFileWatcher(delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &FileWatcher{
		watcher: w,
		delay:   delay,
		logger:  logger.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a file filter. Every filter must accept a path for its
// events to be reported.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive watches root and every directory below it.
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.WalkDir(filepath.Clean(root), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// WatchList returns the directories currently watched.
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)
	return list
}

// Run processes events until ctx is done, then closes the watcher.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()

	d := newDebouncer()
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			change, keep := fw.convert(event)
			if !keep {
				continue
			}
			d.add(change)
			if timer == nil {
				timer = time.NewTimer(fw.delay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(fw.delay)
			}
			timerC = timer.C

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn(ctx, err, "file watcher error")

		case <-timerC:
			timerC = nil
			fw.dispatch(ctx, d.flush())
		}
	}
}

// Close stops the watcher. Run returns once its event channel closes.
func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}

func (fw *FileWatcher) convert(event fsnotify.Event) (ChangeEvent, bool) {
	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		// chmod only
		return ChangeEvent{}, false
	}

	info, err := os.Stat(event.Name)
	if err == nil && info.IsDir() {
		if eventType == EventTypeCreated {
			if err := fw.AddRecursive(event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				fw.logger.Warn(context.Background(), err, "watching new directory", "path", event.Name)
			}
		}
		return ChangeEvent{}, false
	}

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()
	for _, filter := range filters {
		if !filter(event.Name) {
			return ChangeEvent{}, false
		}
	}

	change := ChangeEvent{Type: eventType, Path: event.Name}
	if err == nil {
		change.ModTime = info.ModTime()
		change.Size = info.Size()
	}
	return change, true
}

func (fw *FileWatcher) dispatch(ctx context.Context, events []ChangeEvent) {
	if len(events) == 0 {
		return
	}
	fw.mutex.RLock()
	handlers := fw.handlers
	fw.mutex.RUnlock()

	fw.logger.Debug(ctx, "files changed", "count", len(events))
	for _, handler := range handlers {
		if err := handler(events); err != nil {
			fw.logger.Warn(ctx, err, "file watcher handler failed")
		}
	}
}

// debouncer collects events between flushes, keeping the latest per path.
type debouncer struct {
	pending map[string]ChangeEvent
}

func newDebouncer() *debouncer {
	return &debouncer{pending: make(map[string]ChangeEvent)}
}

func (d *debouncer) add(event ChangeEvent) {
	d.pending[event.Path] = event
}

// flush returns the pending events sorted by path and resets the batch.
func (d *debouncer) flush() []ChangeEvent {
	events := make([]ChangeEvent, 0, len(d.pending))
	for _, event := range d.pending {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	d.pending = make(map[string]ChangeEvent)
	return events
}

// NoHiddenFilter drops dotfiles and editor swap files.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch filepath.Ext(base) {
	case ".swp", ".swx", ".tmp":
		return false
	}
	return true
}
