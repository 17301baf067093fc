// Package byteio provides the big-endian, seekable byte reader the MOBI
// codec is built on: fixed-width integer reads, fixed-length string reads,
// and the base-128 varint encoding MOBI uses for record trailers and index
// entries.
package byteio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reader wraps an io.ReadSeeker with the primitive reads the MOBI record-0
// parser needs. All multi-byte reads are big-endian, matching spec.md §6
// ("All integers big-endian").
type Reader struct {
	r io.ReadSeeker
}

// New wraps r.
func New(r io.ReadSeeker) *Reader {
	return &Reader{r: r}
}

// Pos returns the current stream offset.
func (b *Reader) Pos() (int64, error) {
	return b.r.Seek(0, io.SeekCurrent)
}

// SeekTo sets the stream position to an absolute offset.
func (b *Reader) SeekTo(offset int64) error {
	_, err := b.r.Seek(offset, io.SeekStart)
	return err
}

// Skip advances the stream position by n bytes.
func (b *Reader) Skip(n int64) error {
	_, err := b.r.Seek(n, io.SeekCurrent)
	return err
}

// ReadExact fills dst completely or returns an error.
func (b *Reader) ReadExact(dst []byte) error {
	_, err := io.ReadFull(b.r, dst)
	return err
}

// U8 reads a single byte.
func (b *Reader) U8() (uint8, error) {
	var buf [1]byte
	if err := b.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// U16 reads a big-endian uint16.
func (b *Reader) U16() (uint16, error) {
	var buf [2]byte
	if err := b.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// U32 reads a big-endian uint32.
func (b *Reader) U32() (uint32, error) {
	var buf [4]byte
	if err := b.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// U64 reads a big-endian uint64.
func (b *Reader) U64() (uint64, error) {
	var buf [8]byte
	if err := b.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// String reads n bytes and returns them as a string, trimming trailing NUL
// bytes (fixed-width Pascal/C-style strings used throughout PDB/MOBI).
func (b *Reader) String(n int) (string, error) {
	buf := make([]byte, n)
	if err := b.ReadExact(buf); err != nil {
		return "", err
	}
	end := len(buf)
	for end > 0 && buf[end-1] == 0 {
		end--
	}
	return string(buf[:end]), nil
}

// VarLen decodes a base-128 varint: each byte contributes its low 7 bits
// MSB-first, the high bit marks the terminal byte. Returns the decoded
// value and the number of bytes consumed.
func VarLen(buf []byte) (value uint32, consumed int, err error) {
	for i, c := range buf {
		value = (value << 7) | uint32(c&0x7f)
		consumed = i + 1
		if c&0x80 != 0 {
			return value, consumed, nil
		}
	}
	return 0, 0, fmt.Errorf("byteio: varint not terminated within %d bytes", len(buf))
}

// EncodeVarLen encodes a value as a base-128 varint, MSB-first, terminated
// by setting the high bit of the final byte. It is the inverse of VarLen and
// is exercised by the VarLen round-trip test.
func EncodeVarLen(value uint32) []byte {
	if value == 0 {
		return []byte{0x80}
	}
	var groups []byte
	for value > 0 {
		groups = append([]byte{byte(value & 0x7f)}, groups...)
		value >>= 7
	}
	groups[len(groups)-1] |= 0x80
	return groups
}
