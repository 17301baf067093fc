// Package book implements the unified Book/Chapter/Asset/Nav model spec.md
// §3 describes: the in-memory shape both the MOBI reader and the EPUB
// reader populate, and both the MOBI writer and the EPUB writer consume,
// so converter need not juggle epub.OPF and mobi.Document directly.
// Grounded on internal/epub's OPF/NCX/Content split (title+metadata+manifest
// as separate concerns) and internal/archive's Reader interface, which the
// lazy Chapter/Asset loaders read back through.
package book

import (
	"sync"

	"github.com/yuanying/duallit/internal/archive"
	"github.com/yuanying/duallit/internal/bookerr"
)

// Handle is the exclusive-borrow reentrant archive handle spec.md §5
// describes: every lazily loaded Chapter or Asset reads its body through
// one Handle, and a Handle serializes access with a mutex rather than
// enforcing the single-threaded discipline at compile time. Archive-handle
// lifetime equals book lifetime: closing the Handle invalidates every
// not-yet-loaded Chapter/Asset in the Book it backs.
type Handle struct {
	mu     sync.Mutex
	reader archive.Reader
	closed bool
}

// NewHandle wraps reader. A nil reader is valid for books whose content is
// already fully materialized in memory (the MOBI read path decompresses
// eagerly, per spec.md §4.2.1): Chapter/Asset loaders for such books close
// over their bytes directly and never call Handle.read.
func NewHandle(reader archive.Reader) *Handle {
	return &Handle{reader: reader}
}

func (h *Handle) read(name string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, bookerr.New(bookerr.KindIo, "archive handle closed: "+name)
	}
	if h.reader == nil {
		return nil, bookerr.New(bookerr.KindIo, "no backing archive for: "+name)
	}
	return h.reader.ReadFile(name)
}

// Close releases the backing archive. Safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.reader == nil {
		h.closed = true
		return nil
	}
	h.closed = true
	return h.reader.Close()
}
