package wal

import (
	"errors"
	"time"
)

// Frame layout constants.
const (
	// headerSize is length (4) + crc (4).
	headerSize = 8

	// minFrameSize is crc (4) + op (1).
	minFrameSize = 5
)

// Errors for WAL operations.
var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidOp        = errors.New("wal: invalid entry op")
	ErrClosed           = errors.New("wal: writer is closed")
)

// Op is the operation recorded by an entry.
type Op uint8

const (
	OpUnspecified Op = iota
	OpSave
	OpDelete
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	default:
		return "unspecified"
	}
}

// Entry is one durable operation.
//
// Timestamp is Unix milliseconds.
type Entry struct {
	Op        Op
	Timestamp int64
	Key       string
	Value     []byte
}

// NewSaveEntry creates a save entry. value is not copied.
func NewSaveEntry(key string, value []byte) *Entry {
	return &Entry{
		Op:        OpSave,
		Timestamp: time.Now().UnixMilli(),
		Key:       key,
		Value:     value,
	}
}

// NewDeleteEntry creates a delete entry.
func NewDeleteEntry(key string) *Entry {
	return &Entry{
		Op:        OpDelete,
		Timestamp: time.Now().UnixMilli(),
		Key:       key,
	}
}

// Sealer encrypts values at rest. The key name is bound to the
// ciphertext, so a sealed value cannot be replayed under another key.
type Sealer interface {
	Seal(name string, plaintext []byte) ([]byte, error)
	Open(name string, ciphertext []byte) ([]byte, error)
}
