package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler handles graceful shutdown.
type Handler struct {
	timeout  time.Duration
	signals  []os.Signal
	hooks    []func(context.Context) error
	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// NewHandler creates a shutdown handler whose hooks share timeout.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		hooks:   make([]func(context.Context) error, 0),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// OnClose registers fn as a shutdown hook ignoring the context.
func (h *Handler) OnClose(fn func() error) {
	h.OnShutdown(func(context.Context) error { return fn() })
}

// Wait blocks until a termination signal arrives or ctx is done, then
// runs the hooks. Every hook runs even if an earlier one fails; their
// errors are joined.
func (h *Handler) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.signals...)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	return h.Shutdown()
}

// Shutdown runs the hooks now.
func (h *Handler) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]func(context.Context) error, len(h.hooks))
	copy(hooks, h.hooks)
	h.hooks = h.hooks[:0]
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	h.doneOnce.Do(func() { close(h.done) })
	return errors.Join(errs...)
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
