package mobi

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/yuanying/duallit/internal/epub"
)

// WriterConfig holds the fields needed to assemble a complete MOBI7 file:
// HTML body, metadata, and optional image/cover records, per spec.md
// §4.2.7's write pipeline. Only the MOBI7 header layout is produced — no
// KF8/dual-format boundary records.
type WriterConfig struct {
	Title        string
	HTML         []byte
	Metadata     *epub.Metadata
	ImageRecords [][]byte
	Compression  uint16
	CreationTime time.Time
	UniqueID     uint32
	// CoverImageIndex is the 0-based index into ImageRecords; nil means no
	// cover.
	CoverImageIndex *int
	// TOCEntries, if non-empty, is inlined into HTML as a <guide> reference
	// plus a reader-facing nav fragment (spec.md §4.2.5/§4.2.7); FilePos
	// values must already be resolved against HTML before the TOC fragment
	// itself is spliced in.
	TOCEntries []NCXEntry
}

// Writer assembles and writes a complete MOBI7 file.
type Writer struct {
	cfg WriterConfig
}

// NewWriter validates cfg and returns a Writer.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if len(cfg.HTML) == 0 {
		return nil, fmt.Errorf("mobi: HTML content is required")
	}
	if cfg.Compression == 0 {
		cfg.Compression = CompressionNone
	}
	if cfg.Compression != CompressionNone && cfg.Compression != CompressionPalmDoc {
		return nil, fmt.Errorf("mobi: unsupported compression type: %d", cfg.Compression)
	}
	return &Writer{cfg: cfg}, nil
}

// WriteTo writes the complete MOBI7 file to out, returning the number of
// bytes written.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	cfg := w.cfg
	cfg.HTML = EmbedTOC(cfg.HTML, cfg.TOCEntries)

	var compressor Compressor
	if cfg.Compression == CompressionPalmDoc {
		compressor = &PalmDocCompressor{}
	} else {
		compressor = &NoCompression{}
	}

	textRecords, err := SplitTextRecords(cfg.HTML, compressor)
	if err != nil {
		return 0, fmt.Errorf("mobi: split text records: %w", err)
	}
	textLen := TextLength(cfg.HTML)
	textRecCount := len(textRecords)

	firstContentRecord := uint16(1)
	lastContentRecord := uint16(textRecCount)
	nextIndex := 1 + textRecCount

	var firstImageIndex uint32 = 0xFFFFFFFF
	if len(cfg.ImageRecords) > 0 {
		firstImageIndex = uint32(nextIndex)
		lastContentRecord = uint16(nextIndex + len(cfg.ImageRecords) - 1)
	}
	nextIndex += len(cfg.ImageRecords)

	firstNonBookIndex := uint32(1 + textRecCount)
	totalRecordCount := uint32(nextIndex)

	var exth *EXTHHeader
	if cfg.Metadata != nil {
		exth = EXTHFromMetadata(*cfg.Metadata, 0, totalRecordCount)
	} else {
		exth = NewEXTHHeader(0, totalRecordCount)
	}
	if cfg.CoverImageIndex != nil {
		exth.AddUint32Record(EXTHCoverOffset, uint32(*cfg.CoverImageIndex))
	}
	exthData, err := exth.Bytes()
	if err != nil {
		return 0, fmt.Errorf("mobi: serialize EXTH: %w", err)
	}

	fullName := cfg.Title
	fullNameOffset := uint32(MOBIHeaderLength+16) + uint32(len(exthData))

	locale := defaultLanguageCode
	if cfg.Metadata != nil && cfg.Metadata.Language != "" {
		locale = LanguageCode(cfg.Metadata.Language)
	}

	mobiCfg := MOBIHeaderConfig{
		Compression:        cfg.Compression,
		TextLength:         textLen,
		TextRecordCount:    uint16(textRecCount),
		UniqueID:           cfg.UniqueID,
		FullNameOffset:     fullNameOffset,
		FullNameLength:     uint32(len(fullName)),
		Locale:             locale,
		FirstImageIndex:    firstImageIndex,
		FirstNonBookIndex:  firstNonBookIndex,
		FirstContentRecord: firstContentRecord,
		LastContentRecord:  lastContentRecord,
		EXTHFlags:          0x40,
		INDXRecordOffset:   0xFFFFFFFF,
	}

	headerBytes, err := NewMOBIHeader(mobiCfg)
	if err != nil {
		return 0, fmt.Errorf("mobi: build MOBI header: %w", err)
	}

	var record0 bytes.Buffer
	record0.Write(headerBytes)
	record0.Write(exthData)
	record0.WriteString(fullName)

	recordSizes := make([]int, 0, int(totalRecordCount))
	recordSizes = append(recordSizes, record0.Len())
	for _, tr := range textRecords {
		recordSizes = append(recordSizes, len(tr))
	}
	for _, ir := range cfg.ImageRecords {
		recordSizes = append(recordSizes, len(ir))
	}

	creation := cfg.CreationTime
	if creation.IsZero() {
		creation = time.Now().UTC()
	}
	pdb, err := NewPDB(cfg.Title, recordSizes, creation, creation)
	if err != nil {
		return 0, fmt.Errorf("mobi: build PDB: %w", err)
	}

	var written int64
	writeAll := func(data []byte, label string) error {
		n, err := io.Copy(out, bytes.NewReader(data))
		written += n
		if err != nil {
			return fmt.Errorf("mobi: write %s: %w", label, err)
		}
		return nil
	}

	pdbHeader, err := pdb.HeaderBytes()
	if err != nil {
		return written, fmt.Errorf("mobi: serialize PDB header: %w", err)
	}
	if err := writeAll(pdbHeader, "PDB header"); err != nil {
		return written, err
	}
	recordList, err := pdb.RecordListBytes()
	if err != nil {
		return written, fmt.Errorf("mobi: serialize record list: %w", err)
	}
	if err := writeAll(recordList, "record list"); err != nil {
		return written, err
	}
	if err := writeAll(record0.Bytes(), "record 0"); err != nil {
		return written, err
	}
	for i, tr := range textRecords {
		if err := writeAll(tr, fmt.Sprintf("text record %d", i)); err != nil {
			return written, err
		}
	}
	for i, ir := range cfg.ImageRecords {
		if err := writeAll(ir, fmt.Sprintf("image record %d", i)); err != nil {
			return written, err
		}
	}

	return written, nil
}
