package repl

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// recorder is an Executor remembering the lines it ran.
type recorder struct {
	calls [][]string
	err   error
}

func (r *recorder) exec(_ context.Context, args []string) error {
	r.calls = append(r.calls, args)
	return r.err
}

func newTestREPL(input string, rec *recorder) (*REPL, *bytes.Buffer) {
	output := &bytes.Buffer{}
	r := New(rec.exec, []string{"get", "list", "save"},
		WithIO(strings.NewReader(input), output))
	return r, output
}

func TestNew(t *testing.T) {
	r := New(nil, nil)
	if r == nil {
		t.Fatal("New returned nil")
	}
	if r.completer == nil {
		t.Error("completer should be initialized")
	}
	if r.history == nil {
		t.Error("history should be initialized")
	}
	if r.prompt != DefaultPrompt {
		t.Errorf("prompt = %q, want %q", r.prompt, DefaultPrompt)
	}
}

func TestREPL_Run_Exit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"exit command", "exit\n"},
		{"quit command", "quit\n"},
		{"EOF", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r, _ := newTestREPL(tt.input, rec)

			if err := r.Run(context.Background()); err != nil {
				t.Errorf("Run() returned error: %v", err)
			}
			if len(rec.calls) != 0 {
				t.Errorf("executor called %d times, want 0", len(rec.calls))
			}
		})
	}
}

func TestREPL_Run_EmptyLines(t *testing.T) {
	rec := &recorder{}
	r, output := newTestREPL("\n\n\nexit\n", rec)

	if err := r.Run(context.Background()); err != nil {
		t.Errorf("Run() returned error: %v", err)
	}

	if prompts := strings.Count(output.String(), DefaultPrompt); prompts < 4 {
		t.Errorf("expected at least 4 prompts, got %d", prompts)
	}
}

func TestREPL_Run_Executes(t *testing.T) {
	rec := &recorder{}
	r, _ := newTestREPL("save net/ip \"10.0.0.1 primary\"\n  get net/ip  \nlast-line-without-newline", rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	want := [][]string{
		{"save", "net/ip", "10.0.0.1 primary"},
		{"get", "net/ip"},
		{"last-line-without-newline"},
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %q, want %q", rec.calls, want)
	}
	if r.history.Get(1) != "get net/ip" {
		t.Errorf("history not trimmed: %q", r.history.Get(1))
	}
}

func TestREPL_Run_ErrorsDoNotStop(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	r, output := newTestREPL("sav a 1\nget a\nexit\n", rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(rec.calls) != 2 {
		t.Errorf("executor called %d times, want 2", len(rec.calls))
	}
	out := output.String()
	if strings.Count(out, "Error: boom") != 2 {
		t.Errorf("output = %q, want two errors", out)
	}
	if !strings.Contains(out, `did you mean "save"`) {
		t.Errorf("output = %q, want a suggestion", out)
	}
}

func TestREPL_Run_Builtins(t *testing.T) {
	rec := &recorder{}
	r, output := newTestREPL("help l\nget a\nhistory\nexit\n", rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Errorf("executor called %d times, want 1", len(rec.calls))
	}

	out := output.String()
	if !strings.Contains(out, "list\n") {
		t.Errorf("help output missing list: %q", out)
	}
	if !strings.Contains(out, "help l\n") || !strings.Contains(out, "get a\n") {
		t.Errorf("history output missing entries: %q", out)
	}
}

func TestREPL_Run_CancelledContext(t *testing.T) {
	rec := &recorder{}
	r, _ := newTestREPL("get a\n", rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("executor ran after cancel")
	}
}

func TestREPL_Run_PersistsHistory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "history")

	rec := &recorder{}
	r := New(rec.exec, nil,
		WithIO(strings.NewReader("get a\nexit\n"), &bytes.Buffer{}),
		WithHistory(NewHistory(file)))
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	h := NewHistory(file)
	if err := h.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.Get(0) != "exit" || h.Get(1) != "get a" {
		t.Errorf("loaded history = %q, %q", h.Get(0), h.Get(1))
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "get a/b", want: []string{"get", "a/b"}},
		{line: "  save\ta   1 ", want: []string{"save", "a", "1"}},
		{line: `save a "x y"`, want: []string{"save", "a", "x y"}},
		{line: `save a 'say "hi"'`, want: []string{"save", "a", `say "hi"`}},
		{line: `save a x\ y`, want: []string{"save", "a", "x y"}},
		{line: `save a ""`, want: []string{"save", "a", ""}},
		{line: `save a "open`, wantErr: true},
		{line: `trailing\`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Split(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Split(%q) err = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}
