// Package buildinfo exposes build information injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/settree/internal/infra/buildinfo.Version=v1.0.0"
//
// Fields left unset fall back to the module build information embedded by
// the Go toolchain.
package buildinfo
