package repl

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultHistorySize is the number of lines kept.
const DefaultHistorySize = 1000

// redactedArg replaces values of sensitive settings in history lines.
const redactedArg = "***"

// History is the command history of the shell. Lines that store a value
// under a sensitive setting name are recorded with the value replaced,
// so secrets typed at the prompt never reach the history file.
type History struct {
	entries   []string
	maxSize   int
	file      string
	sensitive func(name string) bool
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithSensitive sets the predicate deciding which setting names have
// their values redacted.
func WithSensitive(fn func(name string) bool) HistoryOption {
	return func(h *History) {
		h.sensitive = fn
	}
}

// WithHistorySize sets the number of lines kept.
func WithHistorySize(n int) HistoryOption {
	return func(h *History) {
		if n > 0 {
			h.maxSize = n
		}
	}
}

// NewHistory creates a history persisted in file. An empty file keeps
// the history in memory only.
func NewHistory(file string, opts ...HistoryOption) *History {
	h := &History{
		entries: make([]string, 0),
		maxSize: DefaultHistorySize,
		file:    file,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DefaultHistoryFile returns ~/.settree/history, or "" when the home
// directory is unknown.
func DefaultHistoryFile() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".settree", "history")
}

// Add records a line. A line repeating the previous one is not recorded
// twice.
func (h *History) Add(line string) {
	line, ok := h.redact(line)
	if !ok {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == line {
		return
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// redact rewrites a save line whose setting is sensitive. It reports
// false for a save line it cannot parse, which is then not recorded.
func (h *History) redact(line string) (string, bool) {
	if h.sensitive == nil {
		return line, true
	}
	cmd, _, _ := strings.Cut(line, " ")
	if cmd != "save" && cmd != "set" {
		return line, true
	}
	args, err := Split(line)
	if err != nil {
		return "", false
	}

	// Positional arguments follow the flags: NAME VALUE.
	pos := 0
	for i := 1; i < len(args); i++ {
		if pos == 0 && strings.HasPrefix(args[i], "-") {
			continue
		}
		pos++
		if pos == 1 && !h.sensitive(args[i]) {
			return line, true
		}
		if pos == 2 {
			args[i] = redactedArg
			return strings.Join(args, " "), true
		}
	}
	return line, true
}

// Get returns the history entry at index (0 = most recent).
func (h *History) Get(index int) string {
	if index < 0 || index >= len(h.entries) {
		return ""
	}
	return h.entries[len(h.entries)-1-index]
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Load loads history from file.
func (h *History) Load() error {
	if h.file == "" {
		return nil
	}
	file, err := os.Open(h.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		h.Add(scanner.Text())
	}
	return scanner.Err()
}

// Save writes the history to file, replacing it atomically.
func (h *History) Save() error {
	if h.file == "" {
		return nil
	}
	dir := filepath.Dir(h.file)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, entry := range h.entries {
		if _, err := w.WriteString(entry + "\n"); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), h.file)
}
