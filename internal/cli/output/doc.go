// Package output renders command results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned text tables
//   - json.go: indented JSON
//   - yaml.go: YAML
//
// Values that implement Tabler choose their own table layout; maps of
// strings render as NAME/VALUE rows. Anything else falls back to YAML in
// table mode.
package output
