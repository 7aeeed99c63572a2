// Package main provides the entry point for settree.
//
// The settree tool works on a hierarchical settings store:
//
//   - Single values (save, get, len, delete)
//   - Subtrees (list, export)
//   - Seed files (import, watch)
//   - Store maintenance (compact)
//
// Usage:
//
//	settree [global flags] command [flags] [args]
//	settree --backend bolt --data-dir ./data import seed.yaml
//	settree -o json list net
//
// The tool supports both single-command mode and an interactive shell.
package main
