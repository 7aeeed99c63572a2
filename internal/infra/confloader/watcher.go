package confloader

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// DefaultMinInterval is the default minimum time between two change
// notifications.
const DefaultMinInterval = 200 * time.Millisecond

// Watcher watches files for changes.
//
// Bursts of events for one file collapse into a single notification, and
// notifications are spaced by at least the configured interval. A
// notification is delivered after the burst, so callbacks always see the
// final content.
type Watcher struct {
	watcher   *fsnotify.Watcher
	limiter   *rate.Limiter
	callbacks []func(string)
	files     map[string]struct{}
	pending   map[string]struct{}
	mu        sync.RWMutex
	done      chan struct{}
	stopOnce  sync.Once
	logger    *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithMinInterval sets the minimum time between notifications.
func WithMinInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewWatcher creates a new file watcher.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watcher := &Watcher{
		watcher: w,
		limiter: rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		files:   make(map[string]struct{}),
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(watcher)
	}

	return watcher, nil
}

// Watch adds a file to watch. The parent directory is watched so that
// editors replacing the file by rename are noticed.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error("failed to watch directory",
			"path", dir,
			"error", err,
		)
		return err
	}

	w.mu.Lock()
	w.files[abs] = struct{}{}
	w.mu.Unlock()

	w.logger.Debug("watching file for changes",
		"path", dir,
		"file", filepath.Base(abs),
	)
	return nil
}

// OnChange registers a callback to be called when a watched file changes.
// The callback receives the absolute path of the changed file.
func (w *Watcher) OnChange(callback func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start starts watching for changes.
// This function blocks until Stop() is called.
func (w *Watcher) Start() {
	w.logger.Info("file watcher started")

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Debug("watcher events channel closed")
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.watched(event.Name) {
				continue
			}
			w.logger.Debug("watched file changed",
				"file", event.Name,
				"op", event.Op.String(),
			)
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Debug("watcher errors channel closed")
				return
			}
			w.logger.Error("file watcher error",
				"error", err,
			)
		case <-w.done:
			w.logger.Debug("watcher received stop signal")
			return
		}
	}
}

// StartAsync starts watching in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop stops the watcher. Notifications already scheduled are dropped.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		if err = w.watcher.Close(); err != nil {
			w.logger.Error("failed to close watcher",
				"error", err,
			)
			return
		}
		w.logger.Info("file watcher stopped")
	})
	return err
}

func (w *Watcher) watched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.files[abs]
	return ok
}

// schedule queues a notification for path unless one is already queued.
func (w *Watcher) schedule(path string) {
	abs, _ := filepath.Abs(path)

	w.mu.Lock()
	if _, ok := w.pending[abs]; ok {
		w.mu.Unlock()
		return
	}
	w.pending[abs] = struct{}{}
	w.mu.Unlock()

	delay := w.limiter.Reserve().Delay()
	time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.pending, abs)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.notifyCallbacks(abs)
	})
}

// notifyCallbacks calls all registered callbacks.
func (w *Watcher) notifyCallbacks(path string) {
	w.mu.RLock()
	callbacks := append([]func(string){}, w.callbacks...)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(path)
	}
}
