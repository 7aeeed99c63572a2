package repl

import (
	"sort"
	"strings"
)

// builtins are handled by the loop itself.
var builtins = []string{"help", "history", "exit", "quit"}

// Completer provides command suggestions for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer for commands plus the built-ins.
func NewCompleter(commands ...string) *Completer {
	all := append(append([]string(nil), commands...), builtins...)
	sort.Strings(all)
	return &Completer{commands: all}
}

// Complete returns the commands starting with prefix, sorted. An empty
// prefix returns every command.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
