package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Saver persists a value under a key.
type Saver interface {
	Save(ctx context.Context, key string, value []byte) error
}

// RuntimeSet routes value to the best matching handler as if it had been
// loaded from storage. Nothing is persisted and no commit is run; use
// CommitSubtree once a batch of runtime updates is complete.
func (l *Loader) RuntimeSet(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h, rest, ok := l.reg.BestMatch(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, key)
	}

	if err := h.Set(rest, len(value), BytesReader(value)); err != nil {
		return &EntryError{Key: key, Handler: h.Name, Op: "set", Err: err}
	}
	return nil
}

// RuntimeGet reads the live value of key from its best matching handler.
func (l *Loader) RuntimeGet(key string, buf []byte) (int, error) {
	h, rest, ok := l.reg.BestMatch(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoHandler, key)
	}
	if h.Get == nil {
		return 0, fmt.Errorf("%w: get on %q", ErrNotSupported, h.Name)
	}
	return h.Get(rest, buf)
}

// CommitSubtree commits every handler whose name lies at or below subtree,
// whether or not it received values. An empty subtree commits all
// handlers.
func (l *Loader) CommitSubtree(ctx context.Context, subtree string) error {
	var errs []error
	for _, h := range l.reg.commitOrder(l.subtreeHandlers(subtree)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if h.Commit == nil {
			continue
		}
		err := h.Commit()
		l.metrics.Committed(err)
		if err != nil {
			errs = append(errs, &EntryError{Handler: h.Name, Op: "commit", Err: err})
		}
	}
	return errors.Join(errs...)
}

func (l *Loader) subtreeHandlers(subtree string) map[*Handler]struct{} {
	set := make(map[*Handler]struct{})
	for _, h := range l.reg.handlers {
		if InSubtree(h.Name, subtree) {
			set[h] = struct{}{}
		}
	}
	return set
}

// SaveAll asks every exporting handler for its current values and writes
// them to dst. Values equal to the stored ones are not rewritten.
// It returns the number of values written.
func (l *Loader) SaveAll(ctx context.Context, dst Saver) (int, error) {
	written := 0

	for _, h := range l.reg.Handlers() {
		if h.Export == nil {
			continue
		}

		err := h.Export(ctx, func(name string, value []byte) error {
			if l.unchanged(ctx, name, value) {
				return nil
			}
			if err := dst.Save(ctx, name, value); err != nil {
				return fmt.Errorf("save %q: %w", name, err)
			}
			written++
			return nil
		})
		if err != nil {
			return written, &EntryError{Handler: h.Name, Op: "export", Err: err}
		}
	}

	l.logger.Debug("settings exported", "written", written)
	return written, nil
}

func (l *Loader) unchanged(ctx context.Context, key string, value []byte) bool {
	// One spare byte tells a longer stored value apart from an equal one.
	buf := make([]byte, len(value)+1)
	n, err := l.LoadOne(ctx, key, buf)
	if err != nil {
		return false
	}
	return n == len(value) && bytes.Equal(buf[:n], value)
}
