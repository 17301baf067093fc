package mobi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/yuanying/duallit/internal/bookerr"
	"github.com/yuanying/duallit/internal/byteio"
)

// Compression type identifiers, per spec.md §4.2.3.
const (
	CompressionNone     uint16 = 1
	CompressionPalmDoc  uint16 = 2
	CompressionHuffCdic uint16 = 17480
)

// Book type identifiers carried in the MOBI header's MobiType field.
const (
	TypeMobipocket uint32 = 2
	TypePalmDoc    uint32 = 3
)

// MOBIHeaderLength is the fixed length, in bytes, of the MOBI7 header this
// package reads and writes. Longer headers (KF8's 264-byte variant) are
// accepted on read but never produced on write.
const MOBIHeaderLength = 232

// PalmDOCHeader is the 16-byte header at the start of record 0, shared by
// every PalmDOC-family format (MOBI included).
type PalmDOCHeader struct {
	Compression    uint16
	Unused         uint16
	TextLength     uint32
	TextRecordCount uint16
	RecordSize     uint16
	EncryptionType uint16
	Unused2        uint16
}

// MOBIHeader is the fixed-field portion of the MOBI header that follows the
// PalmDOC header and the "MOBI"+length identifier in record 0. Field layout
// follows the MOBI7 header (232 bytes); EXTH, the full name, and any
// remaining bytes up to FullNameOffset are read/written separately.
type MOBIHeader struct {
	MobiType             uint32
	TextEncoding         uint32
	UniqueID             uint32
	FileVersion          uint32
	OrthographicIndex    uint32
	InflectionIndex      uint32
	IndexNames           uint32
	IndexKeys            uint32
	ExtraIndex           [6]uint32
	FirstNonBookIndex    uint32
	FullNameOffset       uint32
	FullNameLength       uint32
	Locale               uint32
	InputLanguage        uint32
	OutputLanguage       uint32
	MinVersion           uint32
	FirstImageIndex      uint32
	HuffmanRecordOffset  uint32
	HuffmanRecordCount   uint32
	HuffmanTableOffset   uint32
	HuffmanTableLength   uint32
	EXTHFlags            uint32
	Unused3              [32]byte
	Unused4              uint32
	DRMOffset            uint32
	DRMCount             uint32
	DRMSize              uint32
	DRMFlags             uint32
	Unused5              [2]uint32
	FirstContentRecord   uint16
	LastContentRecord    uint16
	Unused6              uint32
	FCISRecordNumber     uint32
	FCISRecordCount      uint32
	FLISRecordNumber     uint32
	FLISRecordCount      uint32
	Unused7              [2]uint32
	Unused8              uint32
	Unused9              uint32
	Unused10             uint32
	Unused11             uint32
	ExtraDataFlags       uint32
	INDXRecordOffset     uint32
}

// HasEXTH reports whether bit 6 of ExthFlags marks an EXTH header present,
// per spec.md §4.2.2.
func (h *MOBIHeader) HasEXTH() bool {
	return h.EXTHFlags&0x40 != 0
}

// MOBIHeaderConfig holds the fields the writer needs to assemble a record-0
// PalmDOC+MOBI header pair. Fields not listed here are fixed MOBI7 values.
type MOBIHeaderConfig struct {
	Compression     uint16
	TextLength      uint32
	TextRecordCount uint16
	UniqueID        uint32
	FullNameOffset  uint32
	FullNameLength  uint32
	Locale          uint32
	FirstImageIndex uint32
	// FirstNonBookIndex is the record index of the first record that is not
	// book text — text records occupy [1, FirstNonBookIndex).
	FirstNonBookIndex  uint32
	FirstContentRecord uint16
	LastContentRecord  uint16
	EXTHFlags          uint32
	ExtraDataFlags     uint32
	INDXRecordOffset   uint32
}

// NewMOBIHeader builds the combined PalmDOC+MOBI header bytes for record 0,
// not including the EXTH header, full name, or trailing padding — callers
// append those after this block per spec.md §4.2.2's record-0 layout.
func NewMOBIHeader(cfg MOBIHeaderConfig) ([]byte, error) {
	buf := &bytes.Buffer{}

	palmDOC := PalmDOCHeader{
		Compression:     cfg.Compression,
		TextLength:      cfg.TextLength,
		TextRecordCount: cfg.TextRecordCount,
		RecordSize:      RecordSize,
	}
	if err := binary.Write(buf, binary.BigEndian, palmDOC); err != nil {
		return nil, fmt.Errorf("mobi: encode PalmDOC header: %w", err)
	}

	identifier := struct {
		Identifier   [4]byte
		HeaderLength uint32
	}{
		Identifier:   [4]byte{'M', 'O', 'B', 'I'},
		HeaderLength: MOBIHeaderLength,
	}
	if err := binary.Write(buf, binary.BigEndian, identifier); err != nil {
		return nil, fmt.Errorf("mobi: encode MOBI identifier: %w", err)
	}

	mh := MOBIHeader{
		MobiType:           TypeMobipocket,
		TextEncoding:       65001, // UTF-8
		UniqueID:           cfg.UniqueID,
		FileVersion:        6,
		FirstNonBookIndex:  cfg.FirstNonBookIndex,
		FullNameOffset:     cfg.FullNameOffset,
		FullNameLength:     cfg.FullNameLength,
		Locale:             cfg.Locale,
		MinVersion:         6,
		FirstImageIndex:    cfg.FirstImageIndex,
		EXTHFlags:          cfg.EXTHFlags,
		FirstContentRecord: cfg.FirstContentRecord,
		LastContentRecord:  cfg.LastContentRecord,
		ExtraDataFlags:     cfg.ExtraDataFlags,
		INDXRecordOffset:   cfg.INDXRecordOffset,
	}
	if mh.Locale == 0 {
		mh.Locale = defaultLanguageCode
	}
	if err := binary.Write(buf, binary.BigEndian, mh); err != nil {
		return nil, fmt.Errorf("mobi: encode MOBI header: %w", err)
	}

	return buf.Bytes(), nil
}

// ReadPalmDOCHeader parses the 16-byte PalmDOC header from the start of
// record 0.
func ReadPalmDOCHeader(r *byteio.Reader) (*PalmDOCHeader, error) {
	h := &PalmDOCHeader{}
	fields := []struct {
		name string
		set  func(uint16)
	}{
		{"compression", func(v uint16) { h.Compression = v }},
		{"unused", func(v uint16) { h.Unused = v }},
	}
	for _, f := range fields {
		v, err := r.U16()
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PalmDOC header "+f.name, err)
		}
		f.set(v)
	}
	textLength, err := r.U32()
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PalmDOC text length", err)
	}
	h.TextLength = textLength

	u16rest := []*uint16{&h.TextRecordCount, &h.RecordSize, &h.EncryptionType, &h.Unused2}
	for _, f := range u16rest {
		v, err := r.U16()
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PalmDOC header", err)
		}
		*f = v
	}
	return h, nil
}

// ReadMOBIHeader parses the "MOBI"+length identifier and the fixed-field
// MOBI header that follows the PalmDOC header in record 0. recordData is
// the full record 0 payload; offset is the byte position immediately after
// the PalmDOC header (always 16).
func ReadMOBIHeader(recordData []byte, offset int) (*MOBIHeader, int, error) {
	if offset+8 > len(recordData) {
		return nil, 0, bookerr.New(bookerr.KindInvalidArchive, "MOBI identifier truncated")
	}
	if string(recordData[offset:offset+4]) != "MOBI" {
		return nil, 0, bookerr.New(bookerr.KindUnsupportedArchive, "missing MOBI identifier")
	}
	headerLength := binary.BigEndian.Uint32(recordData[offset+4 : offset+8])
	bodyStart := offset + 8
	bodyEnd := offset + int(headerLength)
	if bodyEnd > len(recordData) || bodyEnd < bodyStart {
		return nil, 0, bookerr.New(bookerr.KindInvalidArchive, "MOBI header length out of range")
	}

	body := make([]byte, MOBIHeaderLength-8)
	n := copy(body, recordData[bodyStart:bodyEnd])
	_ = n // shorter (older) headers leave the tail fields zero-valued

	mh := &MOBIHeader{}
	if err := binary.Read(bytes.NewReader(body), binary.BigEndian, mh); err != nil {
		return nil, 0, bookerr.Wrap(bookerr.KindInvalidArchive, "decode MOBI header", err)
	}
	return mh, bodyEnd, nil
}

// StripTrailingEntries removes the per-record trailer bytes described by
// extraDataFlags (multibyte overlap, and any of the 15 generic entry kinds)
// from a raw record payload, per spec.md §4.2.7's trailer-stripping
// invariant: strip before decompressing, repeat for each flagged bit from
// the high bit down.
func StripTrailingEntries(data []byte, extraDataFlags uint32) []byte {
	if len(data) == 3 && bytes.Equal(data, []byte{0, 0, 0}) {
		return nil
	}
	if extraDataFlags == 0 {
		return data
	}
	for i := 15; i >= 0; i-- {
		bit := uint32(1) << uint(i)
		if extraDataFlags&bit == 0 {
			continue
		}
		if i == 0 {
			if len(data) == 0 {
				continue
			}
			l := int(data[len(data)-1])
			extra := 1 + (l & 3)
			if extra > len(data) {
				extra = len(data)
			}
			data = data[:len(data)-extra]
			continue
		}
		value, consumed, err := reverseVarLen(data)
		if err != nil {
			continue
		}
		extra := value
		cut := len(data) - consumed - extra
		if cut < 0 || cut > len(data) {
			continue
		}
		data = data[:cut]
	}
	return data
}

// reverseVarLen decodes a base-128 varint from the tail of buf, scanning
// backward until a byte with the high bit set is found, per spec.md §4.2.7
// step 2 ("the backward variable-width integer decode").
func reverseVarLen(buf []byte) (value int, consumed int, err error) {
	var digits []byte
	for i := len(buf) - 1; i >= 0; i-- {
		c := buf[i]
		digits = append([]byte{c & 0x7f}, digits...)
		consumed++
		if c&0x80 != 0 {
			for _, d := range digits {
				value = (value << 7) | int(d)
			}
			return value, consumed, nil
		}
	}
	return 0, 0, fmt.Errorf("mobi: trailer varint has no terminal high bit")
}
