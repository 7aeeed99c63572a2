package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader reads entries across all segments in order.
type Reader struct {
	sealer Sealer

	segments []segmentInfo
	segIndex int
	startAt  int64

	file   *os.File
	reader *bufio.Reader
}

// NewReader creates a reader over the segments in dir. A missing
// directory reads as an empty log.
func NewReader(dir string, sealer Sealer) (*Reader, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	return &Reader{sealer: sealer, segments: segs}, nil
}

// Seek positions the reader at a composite offset as returned by
// Writer.CurrentOffset or Writer.Rotate.
func (r *Reader) Seek(offset uint64) {
	segID := offset >> 32

	i := 0
	for i < len(r.segments) && r.segments[i].id < segID {
		i++
	}
	r.closeCurrent()
	r.segIndex = i
	r.startAt = 0
	if i < len(r.segments) && r.segments[i].id == segID {
		r.startAt = int64(uint32(offset))
	}
}

// Read returns the next entry, or io.EOF once every segment is consumed.
//
// A corrupted or torn frame ends the current segment; reading goes on
// with the next one.
func (r *Reader) Read() (*Entry, error) {
	for {
		if r.reader == nil {
			if err := r.openNextSegment(); err != nil {
				return nil, err
			}
			if r.reader == nil {
				continue
			}
		}

		frame, err := readFrame(r.reader)
		if err != nil {
			if isTornFrame(err) {
				r.closeCurrent()
				continue
			}
			return nil, err
		}

		e, err := decodeEntryFrame(frame, r.sealer)
		if err != nil {
			if isTornFrame(err) {
				r.closeCurrent()
				continue
			}
			return nil, err
		}
		return e, nil
	}
}

// ReadAll reads every remaining entry.
func (r *Reader) ReadAll() ([]*Entry, error) {
	var out []*Entry
	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

// Close closes any open segment file.
func (r *Reader) Close() error {
	return r.closeCurrent()
}

// Replay calls fn for every entry at or after offset.
func Replay(dir string, sealer Sealer, offset uint64, fn func(*Entry) error) error {
	r, err := NewReader(dir, sealer)
	if err != nil {
		return err
	}
	defer r.Close()

	r.Seek(offset)
	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// openNextSegment opens the next segment, leaving r.reader nil when the
// segment has to be skipped.
func (r *Reader) openNextSegment() error {
	r.closeCurrent()

	if r.segIndex >= len(r.segments) {
		return io.EOF
	}

	seg := r.segments[r.segIndex]
	r.segIndex++
	startAt := r.startAt
	r.startAt = 0

	f, err := os.Open(seg.path)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("wal: stat segment: %w", err)
	}

	_, dataLen, err := verifyChecksumTrailer(f, stat.Size())
	if errors.Is(err, errInvalidMagic) || dataLen < MagicBytesSize {
		f.Close()
		return nil
	}
	if err != nil {
		f.Close()
		return err
	}

	if startAt < MagicBytesSize {
		startAt = MagicBytesSize
	}
	if startAt > dataLen {
		startAt = dataLen
	}

	r.file = f
	r.reader = bufio.NewReader(io.NewSectionReader(f, startAt, dataLen-startAt))
	return nil
}

func (r *Reader) closeCurrent() error {
	r.reader = nil
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// readFrame reads one [len][crc][op][payload] frame and returns it without
// the length prefix.
func readFrame(rd io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(rd, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < minFrameSize {
		return nil, ErrCorruptedEntry
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(rd, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func isTornFrame(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrCorruptedEntry) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrInvalidOp)
}

// validPrefix returns the length of the segment up to the end of its last
// intact frame.
func validPrefix(f *os.File, size int64) (int64, error) {
	rd := bufio.NewReader(io.NewSectionReader(f, MagicBytesSize, size-MagicBytesSize))
	end := int64(MagicBytesSize)

	for {
		frame, err := readFrame(rd)
		if err != nil {
			if isTornFrame(err) {
				return end, nil
			}
			return 0, fmt.Errorf("wal: scan segment: %w", err)
		}
		if _, err := decodeEntryFrame(frame, nil); err != nil && isTornFrame(err) {
			return end, nil
		}
		end += 4 + int64(len(frame))
	}
}
