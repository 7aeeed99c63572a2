// Package config defines the settree configuration.
//
//   - spec.go: Config struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of secrets for display
//
// Configuration is loaded via internal/infra/confloader from a file,
// SETTREE_ environment variables and flags.
package config
