package inbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType classifies a watcher event.
type EventType int

const (
	// EventAdded is emitted when a PNG file appears or changes and its
	// size and mtime have stopped moving for the settle delay.
	EventAdded EventType = iota
	// EventRemoved is emitted when a previously seen PNG disappears.
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a settled file system event from the inbox folder.
type Event struct {
	Type    EventType
	Path    string
	Size    int64
	ModTime time.Time
}

// Watcher monitors the inbox directory tree for PNG files. Files are
// reported only after settling: downloads and network copies arrive in
// bursts of writes, so an event is held until size and mtime stay
// unchanged across the settle delay.
type Watcher struct {
	root   string
	settle time.Duration
	logger *slog.Logger

	fsw     *fsnotify.Watcher
	pending map[string]*pendingFile
	mu      sync.Mutex

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// pendingFile tracks a file that may still be changing.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// NewWatcher creates a watcher over root. Events are delivered on
// Events() after Start.
func NewWatcher(root string, settle time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:    filepath.Clean(root),
		settle:  settle,
		logger:  logger.With("component", "inbox"),
		fsw:     fsw,
		pending: make(map[string]*pendingFile),
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
	}, nil
}

// Start registers the directory tree, seeds the settle queue with the
// files already present, and begins delivering events. Files dropped
// while the daemon was down are picked up by the initial scan.
func (w *Watcher) Start() error {
	if err := w.watchTree(w.root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("watching inbox", "path", w.root, "settle_delay", w.settle)
	return nil
}

// Events returns the channel of settled events. The channel closes
// when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends the watch and closes the events channel.
func (w *Watcher) Stop() error {
	close(w.done)

	w.mu.Lock()
	for _, pending := range w.pending {
		w.stopTimer(pending)
	}
	clear(w.pending)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	close(w.events)
	return err
}

// watchTree walks the tree rooted at path, watching every directory and
// seeding the settle queue with every PNG file it passes.
func (w *Watcher) watchTree(path string) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}

		if info.IsDir() {
			if err := w.fsw.Add(p); err != nil {
				w.logger.Error("failed to add watch", "path", p, "error", err)
			}
			return nil
		}

		if isPNGPath(p) {
			w.startSettling(p)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name

	// New directories join the watch; their contents arrive as events.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.watchTree(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	if !isPNGPath(path) {
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.cancelPending(path)
		w.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		w.startSettling(path)
	}
}

// startSettling begins (or restarts) the settle countdown for a file.
func (w *Watcher) startSettling(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		w.stopTimer(pending)
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}
	if info.IsDir() {
		return
	}

	pending := &pendingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	w.armTimer(path, pending)
	w.pending[path] = pending
}

// armTimer schedules a settle check for one pending entry. Callbacks
// count against the wait group so Stop cannot close the events channel
// under an in-flight emit, and they carry their entry so a callback
// that lost a restart race cannot act on a newer entry.
func (w *Watcher) armTimer(path string, pending *pendingFile) {
	w.wg.Add(1)
	pending.timer = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.checkSettled(path, pending)
	})
}

// stopTimer cancels a pending timer, releasing its wait group slot when
// the callback had not started yet.
func (w *Watcher) stopTimer(pending *pendingFile) {
	if pending.timer.Stop() {
		w.wg.Done()
	}
}

// checkSettled re-stats the file after the settle delay. A file still
// growing restarts the countdown with its new size and mtime.
func (w *Watcher) checkSettled(path string, expected *pendingFile) {
	w.mu.Lock()

	pending, exists := w.pending[path]
	if !exists || pending != expected {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Deleted while settling.
		delete(w.pending, path)
		w.mu.Unlock()
		w.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		w.armTimer(path, pending)
		w.mu.Unlock()
		return
	}

	delete(w.pending, path)
	w.mu.Unlock()
	w.emit(Event{
		Type:    EventAdded,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		w.stopTimer(pending)
		delete(w.pending, path)
	}
}

func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}

func isPNGPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".png")
}
