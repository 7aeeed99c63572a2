package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

type wirePayload struct {
	Timestamp int64  `json:"ts"`
	Key       string `json:"key"`
	Value     []byte `json:"val,omitempty"`
	Sealed    bool   `json:"sealed,omitempty"`
}

func encodeEntryFrame(e *Entry, sealer Sealer) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("wal: entry is nil")
	}
	if e.Op != OpSave && e.Op != OpDelete {
		return nil, ErrInvalidOp
	}
	if e.Key == "" {
		return nil, fmt.Errorf("wal: empty key")
	}

	p := wirePayload{
		Timestamp: e.Timestamp,
		Key:       e.Key,
	}

	if e.Op == OpSave {
		p.Value = e.Value
		if sealer != nil {
			sealed, err := sealer.Seal(e.Key, e.Value)
			if err != nil {
				return nil, fmt.Errorf("wal: seal %q: %w", e.Key, err)
			}
			p.Value = sealed
			p.Sealed = true
		}
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("wal: marshal payload: %w", err)
	}

	// [len][crc][op][payload]; len covers crc, op and payload.
	out := make([]byte, headerSize+1+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(minFrameSize+len(payload)))
	out[8] = byte(e.Op)
	copy(out[9:], payload)
	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(out[8:]))
	return out, nil
}

func decodeEntryFrame(frame []byte, sealer Sealer) (*Entry, error) {
	// frame: [crc32:4][op:1][payload...]
	if len(frame) < minFrameSize {
		return nil, ErrCorruptedEntry
	}

	if crc32.ChecksumIEEE(frame[4:]) != binary.BigEndian.Uint32(frame[:4]) {
		return nil, ErrChecksumMismatch
	}

	op := Op(frame[4])
	if op != OpSave && op != OpDelete {
		return nil, ErrInvalidOp
	}

	var p wirePayload
	if err := json.Unmarshal(frame[5:], &p); err != nil {
		return nil, fmt.Errorf("wal: unmarshal payload: %w", err)
	}

	out := &Entry{
		Op:        op,
		Timestamp: p.Timestamp,
		Key:       p.Key,
		Value:     p.Value,
	}

	if op == OpDelete || !p.Sealed {
		return out, nil
	}
	if sealer == nil {
		return nil, fmt.Errorf("wal: sealed entry %q requires a sealer", p.Key)
	}

	plain, err := sealer.Open(p.Key, p.Value)
	if err != nil {
		return nil, fmt.Errorf("wal: open %q: %w", p.Key, err)
	}
	out.Value = plain
	return out, nil
}
