package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/settree/internal/telemetry/metric"
)

// Mode identifies the kind of load pass.
type Mode string

const (
	ModeAll     Mode = "load_all"
	ModeSubtree Mode = "load_subtree"
	ModeDirect  Mode = "load_direct"
	ModeOne     Mode = "load_one"
)

// Phase is the state of a load pass.
type Phase int

const (
	PhaseEnumerating Phase = iota
	PhaseDispatching
	PhaseCommitting
	PhaseDone
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseEnumerating:
		return "enumerating"
	case PhaseDispatching:
		return "dispatching"
	case PhaseCommitting:
		return "committing"
	default:
		return "done"
	}
}

// errStop ends an enumeration early without reporting a failure.
var errStop = errors.New("settings: stop enumeration")

// Loader dispatches stored entries to registered handlers.
type Loader struct {
	reg     *Registry
	src     Source
	logger  *slog.Logger
	metrics *metric.Settings
	strict  bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics enables load metrics.
func WithMetrics(m *metric.Settings) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithStrict makes the first failed set or direct callback abort the
// enumeration. Handlers touched before the failure are still committed.
func WithStrict(strict bool) Option {
	return func(l *Loader) {
		l.strict = strict
	}
}

// NewLoader creates a loader dispatching entries of src through reg.
func NewLoader(reg *Registry, src Source, opts ...Option) *Loader {
	l := &Loader{
		reg:    reg,
		src:    src,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Registry returns the registry the loader dispatches through.
func (l *Loader) Registry() *Registry {
	return l.reg
}

// LoadAll dispatches every stored entry to its best matching handler and
// commits each handler that received at least one entry.
//
// Entries without a matching handler are skipped. Failed sets and commits
// are collected into a *LoadError.
func (l *Loader) LoadAll(ctx context.Context) error {
	return l.load(ctx, ModeAll, "")
}

// LoadSubtree works like LoadAll restricted to the entries stored at or
// below subtree. Entries are still routed by longest match, so a handler
// registered above subtree receives entries no deeper handler covers.
func (l *Loader) LoadSubtree(ctx context.Context, subtree string) error {
	return l.load(ctx, ModeSubtree, subtree)
}

type pass struct {
	mode    Mode
	subtree string
	phase   Phase
	start   time.Time

	dirty      map[*Handler]struct{}
	dispatched int
	orphaned   int

	errs *LoadError
}

func (l *Loader) load(ctx context.Context, mode Mode, subtree string) error {
	p := &pass{
		mode:    mode,
		subtree: subtree,
		phase:   PhaseEnumerating,
		start:   time.Now(),
		dirty:   make(map[*Handler]struct{}),
		errs:    &LoadError{Mode: mode, Subtree: subtree},
	}

	enumErr := l.src.Enumerate(ctx, subtree, func(e Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return l.dispatch(p, e)
	})

	var failure error
	if enumErr != nil {
		var entryErr *EntryError
		if !errors.As(enumErr, &entryErr) {
			failure = fmt.Errorf("settings: %s %q: enumerate: %w", mode, subtree, enumErr)
		}
	}

	p.phase = PhaseCommitting
	l.commit(p)
	p.phase = PhaseDone

	err := p.errs.orNil()
	if failure != nil {
		err = errors.Join(failure, err)
	}

	l.finish(p, err)
	return err
}

func (l *Loader) dispatch(p *pass, e Entry) error {
	if !InSubtree(e.Key, p.subtree) {
		return nil
	}

	h, key, ok := l.reg.BestMatch(e.Key)
	if !ok {
		p.orphaned++
		l.metrics.EntryOrphaned(string(p.mode))
		l.logger.Debug("no handler for stored key", "key", e.Key)
		return nil
	}

	p.dirty[h] = struct{}{}
	p.dispatched++
	l.metrics.EntryDispatched(string(p.mode))

	p.phase = PhaseDispatching
	defer func() { p.phase = PhaseEnumerating }()

	if err := h.Set(key, e.Len, e.Read); err != nil {
		f := &EntryError{Key: e.Key, Handler: h.Name, Op: "set", Err: err}
		p.errs.add(f)
		l.metrics.EntryFailed(string(p.mode))
		l.logger.Warn("settings set failed",
			"key", e.Key,
			"handler", h.Name,
			"phase", p.phase,
			"error", err)
		if l.strict {
			return f
		}
	}
	return nil
}

func (l *Loader) commit(p *pass) {
	for _, h := range l.reg.commitOrder(p.dirty) {
		if h.Commit == nil {
			continue
		}
		err := h.Commit()
		l.metrics.Committed(err)
		if err != nil {
			p.errs.add(&EntryError{Handler: h.Name, Op: "commit", Err: err})
			l.logger.Warn("settings commit failed",
				"handler", h.Name,
				"error", err)
		}
	}
}

func (l *Loader) finish(p *pass, err error) {
	elapsed := time.Since(p.start)
	l.metrics.ObservePass(string(p.mode), elapsed, err)
	l.logger.Debug("settings load finished",
		"mode", p.mode,
		"subtree", p.subtree,
		"phase", p.phase,
		"dispatched", p.dispatched,
		"orphaned", p.orphaned,
		"committed", len(p.dirty),
		"elapsed", elapsed)
}

// LoadSubtreeDirect hands every entry stored at or below subtree to fn,
// bypassing the registry. The key passed to fn is relative to subtree and
// empty when the stored key equals it. No handler is set or committed.
func (l *Loader) LoadSubtreeDirect(ctx context.Context, subtree string, fn DirectFunc, param any) error {
	if fn == nil {
		return fmt.Errorf("%w: nil direct callback", ErrInvalidHandler)
	}

	p := &pass{
		mode:    ModeDirect,
		subtree: subtree,
		phase:   PhaseEnumerating,
		start:   time.Now(),
		errs:    &LoadError{Mode: ModeDirect, Subtree: subtree},
	}

	enumErr := l.src.Enumerate(ctx, subtree, func(e Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := e.Key
		if subtree != "" {
			m, rest := NameSteq(e.Key, subtree)
			if !m.Matched() {
				return nil
			}
			key = rest
		}

		p.dispatched++
		l.metrics.EntryDispatched(string(ModeDirect))
		if err := fn(key, e.Len, e.Read, param); err != nil {
			f := &EntryError{Key: e.Key, Op: "load", Err: err}
			p.errs.add(f)
			l.metrics.EntryFailed(string(ModeDirect))
			if l.strict {
				return f
			}
		}
		return nil
	})

	var failure error
	if enumErr != nil {
		var entryErr *EntryError
		if !errors.As(enumErr, &entryErr) {
			failure = fmt.Errorf("settings: %s %q: enumerate: %w", ModeDirect, subtree, enumErr)
		}
	}

	p.phase = PhaseDone
	err := p.errs.orNil()
	if failure != nil {
		err = errors.Join(failure, err)
	}

	l.finish(p, err)
	return err
}

// LoadOne copies the value stored under exactly key into buf and returns
// the number of bytes copied. At most len(buf) bytes are read.
func (l *Loader) LoadOne(ctx context.Context, key string, buf []byte) (int, error) {
	var (
		n     int
		found bool
	)

	err := l.src.Enumerate(ctx, key, func(e Entry) error {
		if e.Key != key {
			return nil
		}
		found = true

		read, err := e.Read(buf)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrReadFailure, key, err)
		}
		n = read
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return n, nil
}
