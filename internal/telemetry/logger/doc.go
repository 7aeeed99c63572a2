// Package logger builds the process logger.
//
// It wraps log/slog:
//
//   - logger.go: handler construction and the dynamic level
//   - context.go: logger and operation id propagation
//   - redact.go: masking of secret attributes and setting values
package logger
