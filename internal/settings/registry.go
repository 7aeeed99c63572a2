package settings

import (
	"fmt"
	"sort"
)

// Registry holds the registered handlers.
//
// Matching never depends on registration order: BestMatch always picks the
// longest matching name. Order only decides the commit sequence among
// handlers with the same CommitPriority.
//
// Registry is not safe for concurrent use.
type Registry struct {
	handlers []*Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds h to the registry.
//
// It fails with ErrDuplicateName, leaving the registry untouched, when a
// handler with a byte-identical name is already registered.
func (r *Registry) Register(h *Handler) error {
	if h == nil || h.Name == "" || h.Set == nil {
		return ErrInvalidHandler
	}

	for _, existing := range r.handlers {
		if existing.Name == h.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, h.Name)
		}
	}

	r.handlers = append(r.handlers, h)
	return nil
}

// MustRegister registers h and panics on error.
// Useful for wiring built-in handlers at init time.
func (r *Registry) MustRegister(h *Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Deregister removes h by identity and reports whether it was registered.
func (r *Registry) Deregister(h *Handler) bool {
	for i, existing := range r.handlers {
		if existing == h {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// BestMatch returns the handler with the longest name covering key, and
// the remainder of key below that name (empty on an exact match).
func (r *Registry) BestMatch(key string) (*Handler, string, bool) {
	var (
		best      *Handler
		remainder string
	)

	for _, h := range r.handlers {
		m, next := NameSteq(key, h.Name)
		if !m.Matched() {
			continue
		}
		// Names are unique, so two matching names of equal length cannot occur.
		if best == nil || len(h.Name) > len(best.Name) {
			best = h
			remainder = next
		}
	}

	return best, remainder, best != nil
}

// Lookup returns the handler registered under exactly name.
func (r *Registry) Lookup(name string) (*Handler, bool) {
	for _, h := range r.handlers {
		if h.Name == name {
			return h, true
		}
	}
	return nil, false
}

// Handlers returns the registered handlers in registration order.
func (r *Registry) Handlers() []*Handler {
	out := make([]*Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.handlers)
}

// commitOrder sorts handlers for committing: ascending CommitPriority,
// registration order within equal priority.
func (r *Registry) commitOrder(dirty map[*Handler]struct{}) []*Handler {
	out := make([]*Handler, 0, len(dirty))
	for _, h := range r.handlers {
		if _, ok := dirty[h]; ok {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CommitPriority < out[j].CommitPriority
	})
	return out
}
