package mobi

import (
	"bytes"
	"strings"
	"testing"

	"github.com/yuanying/duallit/internal/epub"
)

func generateTestHTML(size int) []byte {
	prefix := "<html><body>"
	suffix := "</body></html>"
	padding := size - len(prefix) - len(suffix)
	if padding < 0 {
		padding = 0
	}
	return []byte(prefix + strings.Repeat("A", padding) + suffix)
}

func writeToBuffer(t *testing.T, w *Writer) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := w.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Fatalf("WriteTo returned %d bytes, but buffer has %d", n, buf.Len())
	}
	return buf.Bytes()
}

func TestNewWriter_EmptyHTML(t *testing.T) {
	if _, err := NewWriter(WriterConfig{Title: "x"}); err == nil {
		t.Fatal("expected error for empty HTML")
	}
}

func TestNewWriter_InvalidCompression(t *testing.T) {
	html := generateTestHTML(100)
	_, err := NewWriter(WriterConfig{Title: "x", HTML: html, Compression: 99})
	if err == nil {
		t.Fatal("expected error for invalid compression type")
	}
}

func TestNewWriter_CompressionZeroDefaultsToNone(t *testing.T) {
	html := generateTestHTML(100)
	w, err := NewWriter(WriterConfig{Title: "x", HTML: html})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if w == nil {
		t.Fatal("NewWriter returned nil")
	}
}

func TestWriteTo_MinimalOutputHasPDBIdentity(t *testing.T) {
	html := generateTestHTML(100)
	w, err := NewWriter(WriterConfig{Title: "Test Book", HTML: html, UniqueID: 12345})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	data := writeToBuffer(t, w)

	if string(data[60:64]) != "BOOK" {
		t.Errorf("PDB Type: got %q, want %q", string(data[60:64]), "BOOK")
	}
	if string(data[64:68]) != "MOBI" {
		t.Errorf("PDB Creator: got %q, want %q", string(data[64:68]), "MOBI")
	}
}

func TestWriterRoundTripNoCompression(t *testing.T) {
	html := generateTestHTML(200)
	meta := &epub.Metadata{Title: "Round Trip", Language: "en"}
	w, err := NewWriter(WriterConfig{Title: "Round Trip", HTML: html, Metadata: meta})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	data := writeToBuffer(t, w)

	doc, err := ReadFH(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFH: %v", err)
	}
	if !bytes.Equal(doc.HTML, html) {
		t.Fatalf("HTML mismatch: got %d bytes, want %d", len(doc.HTML), len(html))
	}
	if doc.Metadata.Title != "Round Trip" {
		t.Fatalf("Title = %q, want %q", doc.Metadata.Title, "Round Trip")
	}
}

func TestWriterRoundTripPalmDocCompression(t *testing.T) {
	html := generateTestHTML(9000)
	w, err := NewWriter(WriterConfig{
		Title:       "Compressed",
		HTML:        html,
		Compression: CompressionPalmDoc,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	data := writeToBuffer(t, w)

	doc, err := ReadFH(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFH: %v", err)
	}
	if !bytes.Equal(doc.HTML, html) {
		t.Fatalf("HTML mismatch after compressed round trip: got %d bytes, want %d", len(doc.HTML), len(html))
	}
}

func TestWriterRoundTripMultipleTextRecords(t *testing.T) {
	html := generateTestHTML(9000)
	w, err := NewWriter(WriterConfig{Title: "Multi Record", HTML: html})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	data := writeToBuffer(t, w)

	doc, err := ReadFH(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFH: %v", err)
	}
	if !bytes.Equal(doc.HTML, html) {
		t.Fatalf("HTML mismatch: got %d bytes, want %d", len(doc.HTML), len(html))
	}
}

func TestWriterRoundTripWithImagesAndCover(t *testing.T) {
	html := generateTestHTML(100)
	cover := 0
	images := [][]byte{
		{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0},
		{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A},
	}
	w, err := NewWriter(WriterConfig{
		Title:           "With Cover",
		HTML:            html,
		ImageRecords:    images,
		CoverImageIndex: &cover,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	data := writeToBuffer(t, w)

	doc, err := ReadFH(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFH: %v", err)
	}
	if len(doc.Images) != 2 {
		t.Fatalf("got %d images, want 2", len(doc.Images))
	}
	if doc.CoverIndex != 0 {
		t.Fatalf("CoverIndex = %d, want 0", doc.CoverIndex)
	}
}

func TestWriterRoundTripWithTOCAndImages(t *testing.T) {
	html := []byte(`<html><head></head><body><div id="toc"><ul><li><a href="#ch1">Chapter 1</a></li></ul></div><p id="ch1">Chapter 1 text</p><p id="ch2">Chapter 2 text</p></body></html>`)
	ch1Pos := bytes.Index(html, []byte(`<p id="ch1"`))
	ch2Pos := bytes.Index(html, []byte(`<p id="ch2"`))
	tocEntries := []NCXEntry{
		{Label: "Chapter 1", FilePos: uint32(ch1Pos)},
		{Label: "Chapter 2", FilePos: uint32(ch2Pos)},
	}
	images := [][]byte{{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}}
	cover := 0

	w, err := NewWriter(WriterConfig{
		Title:           "With TOC",
		HTML:            html,
		ImageRecords:    images,
		CoverImageIndex: &cover,
		TOCEntries:      tocEntries,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	data := writeToBuffer(t, w)

	doc, err := ReadFH(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFH: %v", err)
	}
	if len(doc.Images) != 1 {
		t.Fatalf("got %d images, want 1", len(doc.Images))
	}
	if doc.CoverIndex != 0 {
		t.Fatalf("CoverIndex = %d, want 0", doc.CoverIndex)
	}
	if len(doc.TOCEntries) != 2 {
		t.Fatalf("got %d TOC entries, want 2: %#v", len(doc.TOCEntries), doc.TOCEntries)
	}
	if doc.TOCEntries[0].Label != "Chapter 1" || doc.TOCEntries[1].Label != "Chapter 2" {
		t.Fatalf("TOCEntries = %#v", doc.TOCEntries)
	}
	if !bytes.Contains(doc.HTML[doc.TOCEntries[0].FilePos:], []byte(`id="ch1"`)) {
		t.Fatalf("TOCEntries[0].FilePos does not point at ch1: %q", doc.HTML[doc.TOCEntries[0].FilePos:doc.TOCEntries[0].FilePos+20])
	}
}

func TestWriterRoundTripWithMetadata(t *testing.T) {
	html := generateTestHTML(100)
	meta := &epub.Metadata{
		Title:    "Original Title",
		Creators: []epub.Creator{{Name: "Author", Role: "aut"}},
		Language: "ja",
	}
	w, err := NewWriter(WriterConfig{Title: "Fallback Title", HTML: html, Metadata: meta})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	data := writeToBuffer(t, w)

	doc, err := ReadFH(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFH: %v", err)
	}
	if len(doc.Metadata.Creators) != 1 || doc.Metadata.Creators[0].Name != "Author" {
		t.Fatalf("Creators = %#v", doc.Metadata.Creators)
	}
	if doc.Metadata.Language != "ja" {
		t.Fatalf("Language = %q, want ja", doc.Metadata.Language)
	}
}
