package settings

import "context"

// ReadFunc copies up to len(p) bytes of the current value into p and
// returns the number of bytes copied.
//
// A ReadFunc is only valid during the callback it was handed to.
type ReadFunc func(p []byte) (int, error)

// SetFunc receives one stored value routed to a handler. key is the part
// of the stored key below the handler name, empty on an exact match.
type SetFunc func(key string, length int, read ReadFunc) error

// CommitFunc is called once per load pass after all values have been set.
type CommitFunc func() error

// GetFunc copies the live value of key into p for runtime reads and
// returns the number of bytes copied.
type GetFunc func(key string, p []byte) (int, error)

// SaveFunc persists one exported value under its full name.
type SaveFunc func(name string, value []byte) error

// ExportFunc emits every value a handler wants persisted.
type ExportFunc func(ctx context.Context, save SaveFunc) error

// DirectFunc receives entries of a direct subtree load. key is relative to
// the requested subtree and empty when the stored key equals it.
type DirectFunc func(key string, length int, read ReadFunc, param any) error

// Handler owns the settings stored below Name.
//
// Only Name and Set are required. The registry keeps a reference to the
// handler while it is registered; it does not own whatever state the
// callbacks update.
type Handler struct {
	// Name is the subtree the handler is responsible for, e.g. "bt/keys".
	Name string

	// Set is called for every stored value routed to this handler.
	Set SetFunc

	// Commit, when set, runs after a load pass that touched the handler.
	Commit CommitFunc

	// Get, when set, serves runtime reads.
	Get GetFunc

	// Export, when set, lets the handler persist its current state.
	Export ExportFunc

	// CommitPriority orders commits within a pass, lower first. Handlers
	// with equal priority commit in registration order.
	CommitPriority int
}

// Entry is one stored value as produced by a Source.
type Entry struct {
	Key  string
	Len  int
	Read ReadFunc
}

// Source enumerates stored entries.
//
// Enumerate calls fn for each stored entry whose key starts with prefix
// (a plain byte prefix, "" meaning everything) until fn returns an error.
// Order is backend defined and must not be relied on. Entries handed to fn
// must not be retained after fn returns.
type Source interface {
	Enumerate(ctx context.Context, prefix string, fn func(Entry) error) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, prefix string, fn func(Entry) error) error

// Enumerate implements Source.
func (f SourceFunc) Enumerate(ctx context.Context, prefix string, fn func(Entry) error) error {
	return f(ctx, prefix, fn)
}

// BytesReader returns a ReadFunc serving value.
//
// Each call copies from the start of value, so a handler that reads twice
// sees the same bytes.
func BytesReader(value []byte) ReadFunc {
	return func(p []byte) (int, error) {
		return copy(p, value), nil
	}
}

// Value reads the whole value of e into a new slice.
func (e Entry) Value() ([]byte, error) {
	buf := make([]byte, e.Len)
	n, err := e.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
