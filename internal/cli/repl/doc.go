// Package repl provides the interactive shell of settree.
//
//   - repl.go: read-eval-print loop and line splitting
//   - completer.go: command name suggestions
//   - history.go: command history persistence
//
// The loop does not know the commands it runs; it hands every line to an
// Executor.
package repl
