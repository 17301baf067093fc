// Package archive is the generic container layer both codecs sit on top of.
// Per spec.md §1 it is "specified only by the three operations the core
// uses" — Open-by-name read, existence check, and stream-file write into a
// single output container — so the Archive interface below is kept to
// exactly that surface. The zip-backed implementation is grounded on
// internal/epub/reader.go's archive/zip usage, generalized so internal/mobi
// can share it for its own (non-EPUB) output container needs in the
// converter path.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// Reader is the read side of the archive layer: open-by-name and existence
// checks over a backing container.
type Reader interface {
	// ReadFile returns the full contents of name.
	ReadFile(name string) ([]byte, error)
	// Exists reports whether name is present in the container.
	Exists(name string) bool
	// Names returns every entry name in container order.
	Names() []string
	// Close releases the underlying handle.
	Close() error
}

// Writer is the write side: stream a single file into the output container.
type Writer interface {
	// WriteFile streams name into the output container with the given
	// compression method (zip.Store or zip.Deflate).
	WriteFile(name string, method uint16, data []byte) error
	// Close finalizes the container.
	Close() error
}

// ZipReader implements Reader over a zip.ReadCloser.
type ZipReader struct {
	zr    *zip.ReadCloser
	index map[string]*zip.File
	order []string
}

// OpenZip opens path as a ZIP container.
func OpenZip(path string) (*ZipReader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	r := &ZipReader{zr: zr, index: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		r.index[f.Name] = f
		r.order = append(r.order, f.Name)
	}
	return r, nil
}

func (r *ZipReader) ReadFile(name string) ([]byte, error) {
	f, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("archive: file not found: %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: open entry %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (r *ZipReader) Exists(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *ZipReader) Names() []string {
	return r.order
}

func (r *ZipReader) Close() error {
	return r.zr.Close()
}

// ZipWriter implements Writer over a zip.Writer backed by an *os.File.
type ZipWriter struct {
	f  *os.File
	zw *zip.Writer
}

// CreateZip creates (truncating if necessary) path as a new ZIP container.
func CreateZip(path string) (*ZipWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", path, err)
	}
	return &ZipWriter{f: f, zw: zip.NewWriter(f)}, nil
}

func (w *ZipWriter) WriteFile(name string, method uint16, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: method}
	fw, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("archive: create entry %s: %w", name, err)
	}
	_, err = fw.Write(data)
	return err
}

func (w *ZipWriter) Close() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
