package mobi

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/yuanying/duallit/internal/bookerr"
	"github.com/yuanying/duallit/internal/byteio"
	"github.com/yuanying/duallit/internal/epub"
)

// textEncodingCP1252 is the MOBI header's text_encoding value for Windows-1252,
// per spec.md §4.2.1 step 3; 65001 (UTF-8) needs no transcoding.
const textEncodingCP1252 = 1252

// Document is the fully parsed MOBI file: decompressed HTML body, metadata,
// image records, and the filepos-anchored table of contents, per spec.md
// §4.2.1's read pipeline.
type Document struct {
	Metadata epub.Metadata
	HTML     []byte
	Images   []ImageRecord
	// CoverIndex is the 0-based index into Images for the cover image, or -1
	// if the EXTH header carries no cover record.
	CoverIndex int
	TOCEntries []NCXEntry
	Guide      []GuideReference

	pdb    *PDB
	header *MOBIHeader
}

// tocFragmentEnd returns the offset of the first "</body>" at or after pos,
// or len(body) if none is found, bounding the reader-facing nav fragment
// that GenerateTOCFragment appends just before the closing body tag.
func tocFragmentEnd(body []byte, pos uint32) int {
	if int(pos) >= len(body) {
		return len(body)
	}
	if rel := bytes.Index(body[pos:], []byte("</body>")); rel >= 0 {
		return int(pos) + rel
	}
	return len(body)
}

// Read opens path and parses it as a MOBI document.
func Read(path string, open func(string) (io.ReadSeeker, func() error, error)) (*Document, error) {
	rs, closer, err := open(path)
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindIo, "open file", err)
	}
	if closer != nil {
		defer closer()
	}
	return ReadFH(rs)
}

// ReadFH parses a MOBI document from an already-open ReadSeeker, sized via
// Seek(0, io.SeekEnd).
func ReadFH(rs io.ReadSeeker) (*Document, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindIo, "seek to end", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, bookerr.Wrap(bookerr.KindIo, "seek to start", err)
	}

	r := byteio.New(rs)
	pdb, err := ReadPDB(r, size)
	if err != nil {
		return nil, err
	}
	if string(pdb.Header.Type[:]) != "BOOK" || string(pdb.Header.Creator[:]) != "MOBI" {
		return nil, bookerr.NotMobi
	}
	if len(pdb.Data) == 0 {
		return nil, bookerr.New(bookerr.KindInvalidArchive, "no PDB records")
	}

	return Parse(pdb)
}

// Parse builds a Document from an already-read PDB.
func Parse(pdb *PDB) (*Document, error) {
	record0 := pdb.Data[0]
	if len(record0) < 16 {
		return nil, bookerr.New(bookerr.KindInvalidArchive, "record 0 truncated")
	}

	palmDOC, err := ReadPalmDOCHeader(byteio.New(bytes.NewReader(record0[:16])))
	if err != nil {
		return nil, err
	}

	mh, bodyEnd, err := ReadMOBIHeader(record0, 16)
	if err != nil {
		return nil, err
	}

	doc := &Document{pdb: pdb, header: mh, CoverIndex: -1}

	fullName := ""
	if int(mh.FullNameOffset) < len(record0) {
		end := int(mh.FullNameOffset) + int(mh.FullNameLength)
		if end > len(record0) {
			end = len(record0)
		}
		fullName = string(record0[mh.FullNameOffset:end])
	}

	var exth *EXTHHeader
	if mh.HasEXTH() {
		exth, _, err = ReadEXTHHeader(record0[bodyEnd:])
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "EXTH header", err)
		}
		doc.Metadata = exth.ToMetadata(fullName)
	} else {
		doc.Metadata = epub.Metadata{Title: fullName}
	}

	html, err := decodeText(pdb, palmDOC, mh)
	if err != nil {
		return nil, err
	}
	if mh.TextEncoding == textEncodingCP1252 {
		html, err = decodeCP1252(html)
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindUtf8, "decode CP1252 text", err)
		}
	}
	doc.HTML = html

	lastImage := mh.LastContentRecord
	if lastImage == 0 {
		lastImage = uint16(len(pdb.Data) - 1)
	}
	doc.Images = ExtractImageRecords(pdb, mh.FirstImageIndex, lastImage)

	if exth != nil {
		if offset, ok := exth.Uint32(EXTHCoverOffset); ok && int(offset) < len(doc.Images) {
			doc.CoverIndex = int(offset)
		}
	}

	doc.Guide = ParseGuide(doc.HTML)
	if pos, ok := FindGuideFilePos(doc.HTML, "toc"); ok {
		end := tocFragmentEnd(doc.HTML, pos)
		if int(pos) < end {
			entries, perr := ParseTOCFragment(string(doc.HTML[pos:end]))
			if perr == nil {
				doc.TOCEntries = entries
			}
		}
	}

	return doc, nil
}

// decodeCP1252 transcodes a CP1252-encoded byte stream to UTF-8, per
// spec.md §4.2.1 step 5 (text_encoding == 1252).
func decodeCP1252(data []byte) ([]byte, error) {
	return io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
}

// decodeText reassembles the book's HTML body from the content records
// between record 1 and FirstNonBookIndex, stripping per-record trailers and
// decompressing per the PalmDOC header's compression type.
func decodeText(pdb *PDB, palmDOC *PalmDOCHeader, mh *MOBIHeader) ([]byte, error) {
	firstNonBook := int(mh.FirstNonBookIndex)
	if firstNonBook == 0 || firstNonBook > len(pdb.Data) {
		firstNonBook = len(pdb.Data)
	}

	out := make([]byte, 0, int(palmDOC.TextLength))
	for i := 1; i < firstNonBook; i++ {
		stripped := StripTrailingEntries(pdb.Data[i], mh.ExtraDataFlags)
		switch palmDOC.Compression {
		case CompressionNone:
			out = append(out, stripped...)
		case CompressionPalmDoc:
			decoded, err := PalmDocDecompress(stripped)
			if err != nil {
				return nil, bookerr.Wrap(bookerr.KindInvalidArchive, "decompress text record", err)
			}
			out = append(out, decoded...)
		default:
			return nil, bookerr.New(bookerr.KindUnsupportedArchive, "unsupported compression type")
		}
	}
	if uint32(len(out)) > palmDOC.TextLength {
		out = out[:palmDOC.TextLength]
	}
	return out, nil
}
