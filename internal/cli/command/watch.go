package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/infra/confloader"
	"github.com/yndnr/settree/internal/infra/shutdown"
	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/logger"
)

// DefaultShutdownTimeout bounds the shutdown hooks of the watch command.
const DefaultShutdownTimeout = 10 * time.Second

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Import a seed file and re-import it whenever it changes",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			prefixFlag,
			pruneFlag,
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Minimum time between two re-imports",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve prometheus metrics on this address",
			},
		},
		Action: withEnv(runWatch),
	}
}

func runWatch(ctx context.Context, c *cli.Context, e *env) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}

	interval := e.cfg.Watch.MinInterval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	addr := e.cfg.Metrics.Addr
	if c.IsSet("metrics-addr") {
		addr = c.String("metrics-addr")
	}

	s := newSeeder(e, c.Args().First(), c.String("prefix"), c.Bool("prune") || e.cfg.Watch.Prune)
	if err := s.sync(ctx); err != nil {
		return err
	}

	sh := shutdown.NewHandler(DefaultShutdownTimeout)

	if addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           e.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		sh.OnShutdown(srv.Shutdown)
		e.logger.Info("serving metrics", "addr", addr)
	}

	watcher, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(e.logger),
		confloader.WithMinInterval(interval),
	)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Watch(s.path); err != nil {
		watcher.Stop()
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	watcher.OnChange(func(string) {
		if err := s.sync(ctx); err != nil {
			e.logger.Error("re-import failed", "file", s.path, "error", err)
		}
	})
	// Hooks run in reverse: stop the watcher, then wait for a running
	// import to finish and refuse later ones.
	sh.OnClose(func() error {
		s.close()
		return nil
	})
	sh.OnClose(watcher.Stop)
	watcher.StartAsync()

	e.logger.Info("watching seed file", "file", s.path, "prefix", s.prefix)
	return sh.Wait(ctx)
}

// seeder imports one seed file and reports the settings it changed.
type seeder struct {
	env    *env
	path   string
	prefix string
	prune  bool

	// mu serializes imports triggered by file events.
	mu     sync.Mutex
	closed bool
	mirror *mirror
	reg    *settings.Registry
	loader *settings.Loader
}

func newSeeder(e *env, path, prefix string, prune bool) *seeder {
	s := &seeder{
		env:    e,
		path:   path,
		prefix: prefix,
		prune:  prune,
		mirror: newMirror(),
		reg:    settings.NewRegistry(),
	}
	s.loader = e.newLoader(s.reg)
	return s
}

// close waits for a running sync and turns later ones into no-ops.
func (s *seeder) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// sync imports the seed file, reloads the subtree through the mirror
// handlers and prints what their commits changed.
func (s *seeder) sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if _, err := s.env.importSeed(ctx, s.path, s.prefix, s.prune); err != nil {
		return err
	}

	subtree := strings.Trim(s.prefix, confloader.NameDelimiter)
	if err := s.registerHandlers(ctx, subtree); err != nil {
		return err
	}

	s.mirror.begin()
	var err error
	if subtree == "" {
		err = s.loader.LoadAll(ctx)
	} else {
		err = s.loader.LoadSubtree(ctx, subtree)
	}
	// Handlers that received nothing still commit, so settings removed
	// from the store are reported.
	if err == nil {
		err = s.loader.CommitSubtree(ctx, subtree)
	}
	if err != nil {
		s.mirror.rollback()
		return err
	}

	return writeChanges(s.env.out, s.env.logger, s.mirror.settle())
}

// registerHandlers makes sure a mirror handler covers every setting in
// subtree: one handler for the subtree itself, or one per top level name
// when the whole store is watched.
func (s *seeder) registerHandlers(ctx context.Context, subtree string) error {
	if subtree != "" {
		return s.ensureHandler(subtree)
	}

	values, err := readSubtree(ctx, s.env, "")
	if err != nil {
		return err
	}
	for _, v := range values {
		top, _, _ := strings.Cut(v.name, confloader.NameDelimiter)
		if err := s.ensureHandler(top); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) ensureHandler(name string) error {
	if _, ok := s.reg.Lookup(name); ok {
		return nil
	}
	return s.reg.Register(s.mirror.handler(name))
}

// change is one setting that differs between two passes.
type change struct {
	Op    string
	Name  string
	value []byte
}

func writeChanges(w io.Writer, log *slog.Logger, changes []change) error {
	for _, ch := range changes {
		log.Info("setting "+ch.Op, "name", ch.Name, logger.Value(ch.Name, ch.value))
		if _, err := fmt.Fprintf(w, "%s %s\n", ch.Op, ch.Name); err != nil {
			return err
		}
	}
	return nil
}

// mirror keeps, per handler, the values last committed through it.
// Values are keyed by full setting name.
type mirror struct {
	mu        sync.Mutex
	current   map[string]map[string][]byte
	staged    map[string]map[string][]byte
	committed map[string]bool
	changes   []change

	// saved is current as of begin, restored by rollback.
	saved map[string]map[string][]byte
}

func newMirror() *mirror {
	return &mirror{
		current:   make(map[string]map[string][]byte),
		staged:    make(map[string]map[string][]byte),
		committed: make(map[string]bool),
	}
}

// handler returns a settings handler mirroring the subtree name.
func (m *mirror) handler(name string) *settings.Handler {
	return &settings.Handler{
		Name: name,
		Set: func(key string, length int, read settings.ReadFunc) error {
			buf := make([]byte, length)
			n, err := read(buf)
			if err != nil {
				return err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.staged[name] == nil {
				m.staged[name] = make(map[string][]byte)
			}
			m.staged[name][fullName(name, key)] = buf[:n]
			return nil
		},
		Commit: func() error {
			m.commit(name)
			return nil
		},
	}
}

// begin starts a new load pass.
func (m *mirror) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = maps.Clone(m.current)
	m.staged = make(map[string]map[string][]byte)
	m.committed = make(map[string]bool)
	m.changes = nil
}

// commit makes the values staged for handler name current and records
// how they differ from the previous pass. Only the first commit of a
// handler in a pass counts.
func (m *mirror) commit(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.committed[name] {
		return
	}
	m.committed[name] = true

	staged, old := m.staged[name], m.current[name]
	for full, v := range staged {
		prev, ok := old[full]
		switch {
		case !ok:
			m.changes = append(m.changes, change{Op: "added", Name: full, value: v})
		case !bytes.Equal(prev, v):
			m.changes = append(m.changes, change{Op: "changed", Name: full, value: v})
		}
	}
	for full, v := range old {
		if _, ok := staged[full]; !ok {
			m.changes = append(m.changes, change{Op: "removed", Name: full, value: v})
		}
	}

	// Committed maps are replaced, never modified, so saved stays intact.
	if len(staged) == 0 {
		delete(m.current, name)
	} else {
		m.current[name] = staged
	}
}

// rollback drops everything committed since begin.
func (m *mirror) rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.saved
	if m.current == nil {
		m.current = make(map[string]map[string][]byte)
	}
	m.changes = nil
}

// settle returns the changes committed since begin, sorted by name.
func (m *mirror) settle() []change {
	m.mu.Lock()
	defer m.mu.Unlock()

	changes := m.changes
	m.changes = nil
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes
}
