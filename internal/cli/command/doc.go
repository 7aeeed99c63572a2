// Package command provides the settree command definitions.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: App, global flags, configuration and per-command setup
//   - factory.go: store selection from configuration
//   - value.go: save, get, len and delete
//   - list.go: list and export of a subtree
//   - import.go: import of YAML/JSON seed files
//   - compact.go: on-demand compaction
//   - watch.go: re-import of a seed file on change
//   - shell.go: interactive session over one open store
//   - version.go, config.go: build and configuration info
//
// Outside the shell every command opens the configured store, runs, and
// closes it again.
package command
