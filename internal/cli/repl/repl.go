package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultPrompt is printed before every line.
const DefaultPrompt = "settree> "

// ErrUnterminatedQuote is returned by Split for a line with an open quote.
var ErrUnterminatedQuote = errors.New("repl: unterminated quote")

// Executor runs one shell line split into arguments.
type Executor func(ctx context.Context, args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	exec      Executor
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithIO sets the input and output of the loop.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input = in
		r.output = out
	}
}

// WithPrompt sets the prompt.
func WithPrompt(prompt string) Option {
	return func(r *REPL) {
		r.prompt = prompt
	}
}

// WithHistory sets the history. Its file is loaded when the loop starts
// and saved when it ends.
func WithHistory(h *History) Option {
	return func(r *REPL) {
		r.history = h
	}
}

// New creates a REPL running lines with exec. commands are the names
// offered by "help".
func New(exec Executor, commands []string, opts ...Option) *REPL {
	r := &REPL{
		input:     os.Stdin,
		output:    os.Stdout,
		prompt:    DefaultPrompt,
		exec:      exec,
		completer: NewCompleter(commands...),
		history:   NewHistory(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads lines until exit, quit, end of input or ctx is done. Command
// errors are printed and do not stop the loop.
func (r *REPL) Run(ctx context.Context) error {
	if err := r.history.Load(); err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	err := r.loop(ctx)
	if serr := r.history.Save(); serr != nil && err == nil {
		err = fmt.Errorf("save history: %w", serr)
	}
	return err
}

func (r *REPL) loop(ctx context.Context) error {
	reader := bufio.NewReader(r.input)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(r.output, r.prompt)

		line, err := reader.ReadString('\n')
		if err == io.EOF && line == "" {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.history.Add(line)

		if line == "exit" || line == "quit" {
			return nil
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
	}
}

func (r *REPL) execute(ctx context.Context, line string) error {
	args, err := Split(line)
	if err != nil {
		return err
	}

	switch args[0] {
	case "help":
		prefix := strings.Join(args[1:], " ")
		for _, cmd := range r.completer.Complete(prefix) {
			fmt.Fprintln(r.output, cmd)
		}
		return nil
	case "history":
		for i := r.history.Len() - 1; i >= 0; i-- {
			fmt.Fprintln(r.output, r.history.Get(i))
		}
		return nil
	}

	if err := r.exec(ctx, args); err != nil {
		if s := r.completer.Complete(args[0]); len(s) > 0 && s[0] != args[0] {
			return fmt.Errorf("%w (did you mean %q?)", err, s[0])
		}
		return err
	}
	return nil
}

// Split splits a line into arguments at whitespace. Single and double
// quotes group words; a backslash escapes the next character outside
// single quotes.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inArg = true
		case c == ' ' || c == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(c)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
