package command

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/settree/internal/cli/output"
	"github.com/yndnr/settree/internal/config"
	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/storage"
	"github.com/yndnr/settree/internal/storage/memory"
	"github.com/yndnr/settree/internal/telemetry/logger"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

// runApp runs the app with args and returns what it wrote to its output.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut

	err := app.Run(append([]string{"settree"}, args...))
	return out.String(), err
}

// mustRun runs the app and fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runApp(t, args...)
	if err != nil {
		t.Fatalf("settree %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// storeArgs returns global flags selecting backend in a fresh directory.
func storeArgs(t *testing.T, backend string) []string {
	t.Helper()
	return []string{"--backend", backend, "--data-dir", t.TempDir(), "--log-level", "error"}
}

func with(base []string, args ...string) []string {
	out := append([]string(nil), base...)
	return append(out, args...)
}

// writeFile writes content to name in a temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// newTestEnv returns an env over a fresh memory store.
func newTestEnv(t *testing.T, out io.Writer) *env {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Backend = storage.BackendMemory

	e := &env{
		cfg:     cfg,
		logger:  logger.Discard(),
		metrics: metric.NewRegistry(),
		store:   memory.New(),
		out:     out,
		format:  output.FormatTable,
	}
	e.loader = e.newLoader(settings.NewRegistry())
	t.Cleanup(func() { e.store.Close() })
	return e
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitFor polls b until it contains s.
func waitFor(t *testing.T, b *syncBuffer, s string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), s) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, got:\n%s", s, b.String())
}
