// Package mobi implements the MOBI binary codec: PDB record layout,
// PalmDOC LZ77 compression, the MOBI/EXTH header record layout, record
// trailer stripping, image extraction by recindex, and the two table-of-
// contents representations (filepos anchors and the EXTH guide reference).
package mobi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/yuanying/duallit/internal/bookerr"
	"github.com/yuanying/duallit/internal/byteio"
)

// PalmEpochOffset is the difference in seconds between the Unix epoch and
// the Palm epoch (1904-01-01 00:00:00 UTC), per spec.md §4.2.6.
const PalmEpochOffset = 2082844800

// PDBHeaderSize is the fixed size of the Palm Database header in bytes.
const PDBHeaderSize = 78

// PDBHeader is the fixed 78-byte Palm Database header. All fields are
// big-endian.
type PDBHeader struct {
	Name               [32]byte
	Attributes         uint16
	Version            uint16
	CreationDate       uint32
	ModificationDate   uint32
	BackupDate         uint32
	ModificationNumber uint32
	AppInfoOffset      uint32
	SortInfoOffset     uint32
	Type               [4]byte
	Creator            [4]byte
	UniqueSeed         uint32
	NextRecordList     uint32
	NumRecords         uint16
}

// RecordEntry is one entry in the PDB record list.
type RecordEntry struct {
	Offset     uint32
	Attributes uint8
	UniqueID   [3]byte
}

// PDB holds the parsed (or about-to-be-written) Palm Database: its header,
// record list, and — once read — the raw bytes of each record.
type PDB struct {
	Header  PDBHeader
	Records []RecordEntry
	// Data holds the raw bytes of each record, populated by ReadPDB. The
	// i-th record spans [Offset[i], Offset[i+1]) in the source file, the
	// last record spanning to EOF, per spec.md's PDBRecord invariant.
	Data [][]byte
}

// ReadPDB parses the 78-byte header and record list from r, then reads each
// record's raw bytes using the offset invariant (each record spans up to
// the next record's offset, or EOF for the last one).
func ReadPDB(r *byteio.Reader, size int64) (*PDB, error) {
	p := &PDB{}

	name, err := r.String(32)
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB name", err)
	}
	copy(p.Header.Name[:], name)

	u16fields := []*uint16{&p.Header.Attributes, &p.Header.Version}
	for _, f := range u16fields {
		v, err := r.U16()
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB header", err)
		}
		*f = v
	}

	u32fields := []*uint32{
		&p.Header.CreationDate, &p.Header.ModificationDate, &p.Header.BackupDate,
		&p.Header.ModificationNumber, &p.Header.AppInfoOffset, &p.Header.SortInfoOffset,
	}
	for _, f := range u32fields {
		v, err := r.U32()
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB header", err)
		}
		*f = v
	}

	typ, err := r.String(4)
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB type", err)
	}
	copy(p.Header.Type[:], typ)
	creator, err := r.String(4)
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB creator", err)
	}
	copy(p.Header.Creator[:], creator)

	u32fields2 := []*uint32{&p.Header.UniqueSeed, &p.Header.NextRecordList}
	for _, f := range u32fields2 {
		v, err := r.U32()
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB header", err)
		}
		*f = v
	}

	numRecords, err := r.U16()
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB record count", err)
	}
	p.Header.NumRecords = numRecords

	p.Records = make([]RecordEntry, numRecords)
	for i := range p.Records {
		offset, err := r.U32()
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB record entry", err)
		}
		attr, err := r.U8()
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB record entry", err)
		}
		var uid [3]byte
		if err := r.ReadExact(uid[:]); err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "PDB record entry", err)
		}
		p.Records[i] = RecordEntry{Offset: offset, Attributes: attr, UniqueID: uid}
		if int64(offset) > size {
			return nil, bookerr.New(bookerr.KindInvalidArchive, "offset")
		}
	}

	p.Data = make([][]byte, len(p.Records))
	for i, rec := range p.Records {
		end := size
		if i+1 < len(p.Records) {
			end = int64(p.Records[i+1].Offset)
		}
		if end < int64(rec.Offset) {
			return nil, bookerr.New(bookerr.KindInvalidArchive, "offset")
		}
		if err := r.SeekTo(int64(rec.Offset)); err != nil {
			return nil, bookerr.Wrap(bookerr.KindIo, "seek to record", err)
		}
		buf := make([]byte, end-int64(rec.Offset))
		if err := r.ReadExact(buf); err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "read record", err)
		}
		p.Data[i] = buf
	}

	return p, nil
}

// NewPDB builds a PDB header and record list for the given title and record
// sizes. creation/modification default to the current UTC time when zero.
func NewPDB(title string, recordSizes []int, creation, modification time.Time) (*PDB, error) {
	if len(recordSizes) > math.MaxUint16 {
		return nil, fmt.Errorf("mobi: record count exceeds PalmDB limit: %d", len(recordSizes))
	}
	for i, size := range recordSizes {
		if size < 0 {
			return nil, fmt.Errorf("mobi: record size cannot be negative (index %d)", i)
		}
	}

	if creation.IsZero() {
		creation = time.Now().UTC()
	}
	if modification.IsZero() {
		modification = creation
	}

	records := buildRecordEntries(recordSizes)

	header := PDBHeader{
		Name:             truncateDatabaseName(title),
		CreationDate:     PalmEpochSeconds(creation),
		ModificationDate: PalmEpochSeconds(modification),
		Type:             [4]byte{'B', 'O', 'O', 'K'},
		Creator:          [4]byte{'M', 'O', 'B', 'I'},
		NumRecords:       uint16(len(records)),
	}

	return &PDB{Header: header, Records: records}, nil
}

// PalmEpochSeconds converts t to Palm epoch seconds.
func PalmEpochSeconds(t time.Time) uint32 {
	return uint32(t.Unix()) + PalmEpochOffset
}

// HeaderBytes encodes the PDB header to its 78-byte binary form.
func (p *PDB) HeaderBytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	fields := []interface{}{
		p.Header.Name, p.Header.Attributes, p.Header.Version,
		p.Header.CreationDate, p.Header.ModificationDate, p.Header.BackupDate,
		p.Header.ModificationNumber, p.Header.AppInfoOffset, p.Header.SortInfoOffset,
		p.Header.Type, p.Header.Creator, p.Header.UniqueSeed,
		p.Header.NextRecordList, p.Header.NumRecords,
	}
	for _, field := range fields {
		if err := binary.Write(buf, binary.BigEndian, field); err != nil {
			return nil, fmt.Errorf("mobi: encode PDB header: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// RecordListBytes encodes the record list followed by the 2-byte padding.
func (p *PDB) RecordListBytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	for _, rec := range p.Records {
		if err := binary.Write(buf, binary.BigEndian, rec.Offset); err != nil {
			return nil, fmt.Errorf("mobi: write record offset: %w", err)
		}
		if err := buf.WriteByte(rec.Attributes); err != nil {
			return nil, fmt.Errorf("mobi: write record attributes: %w", err)
		}
		if _, err := buf.Write(rec.UniqueID[:]); err != nil {
			return nil, fmt.Errorf("mobi: write record unique ID: %w", err)
		}
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(0)); err != nil {
		return nil, fmt.Errorf("mobi: write record list padding: %w", err)
	}
	return buf.Bytes(), nil
}

func buildRecordEntries(recordSizes []int) []RecordEntry {
	records := make([]RecordEntry, len(recordSizes))
	offset := uint32(PDBHeaderSize + len(recordSizes)*8 + 2)
	for i, size := range recordSizes {
		records[i] = RecordEntry{Offset: offset, UniqueID: encodeUniqueID(uint32(i))}
		offset += uint32(size)
	}
	return records
}

func truncateDatabaseName(name string) [32]byte {
	var result [32]byte
	var buf []byte
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && size == 1 {
			size = 1
		}
		if len(buf)+size > 31 {
			break
		}
		buf = append(buf, name[i:i+size]...)
		i += size
	}
	copy(result[:], buf)
	return result
}

func encodeUniqueID(id uint32) [3]byte {
	return [3]byte{byte(id >> 16), byte(id >> 8), byte(id)}
}
