package book

import "sync"

// MetadataEntry is one free-form name/value pair in the Book's ordered
// Metadata sequence, per spec.md §3: every attribute spec.md singles out
// (title, creator, publisher, ...) also lives as a typed field on Book, but
// Metadata additionally carries whatever the source container's metadata
// block held that doesn't map onto one of those fields (extra dc:* or
// EXTH records), so a round trip doesn't silently drop them.
type MetadataEntry struct {
	Name  string
	Value string
}

// Book is the unified in-memory shape of a parsed ebook, independent of
// its source container. Title is copied as is from the source's metadata;
// FromEPUB and FromMOBI do not check that it is non-empty. Every other
// scalar attribute is optional and left at its zero value when the source
// container didn't carry it.
type Book struct {
	Title       string
	Identifier  string
	Creator     string
	Contributor string
	Description string
	Date        string
	Format      string
	Publisher   string
	Subject     string
	LastModify  string
	Generator   string
	Version     string

	Metadata []MetadataEntry
	Nav      []*Nav
	Assets   []*Asset
	Chapters []*Chapter
	Cover    *Asset

	handle *Handle
}

// New builds an empty Book backed by handle. Version defaults to "2.0",
// spec.md §3's EPUB default; MOBI builders overwrite it with their own
// fixed value.
func New(handle *Handle) *Book {
	return &Book{handle: handle, Version: "2.0"}
}

// Close releases the Book's backing archive handle, if any.
func (b *Book) Close() error {
	if b.handle == nil {
		return nil
	}
	return b.handle.Close()
}

// loader lazily computes a Chapter/Asset's body on first Data() call and
// memoizes the result, per spec.md §3's Chapter/Asset lifecycle: "body
// loaded on first data() call ... may be released and re-loaded."
type loader struct {
	once sync.Once
	data []byte
	err  error
	fn   func() ([]byte, error)
}

func newLoader(fn func() ([]byte, error)) *loader {
	return &loader{fn: fn}
}

func (l *loader) Data() ([]byte, error) {
	l.once.Do(func() {
		l.data, l.err = l.fn()
	})
	return l.data, l.err
}

// Release drops the cached body so the next Data() call reloads it.
func (l *loader) Release() {
	*l = loader{fn: l.fn}
}

// Chapter is one spine-ordered content document of the book, per spec.md
// §3. FileName is container-relative and never prefixed with "EPUB/".
type Chapter struct {
	ID        string
	FileName  string
	MediaType string
	Title     string
	Language  string
	InlineCSS string
	CSSLinks  []string

	loader *loader
}

// NewChapter builds a Chapter whose body is produced lazily by load.
func NewChapter(fileName string, load func() ([]byte, error)) *Chapter {
	return &Chapter{FileName: fileName, MediaType: "application/xhtml+xml", loader: newLoader(load)}
}

// Data returns the chapter's body HTML fragment, loading it on first call.
func (c *Chapter) Data() ([]byte, error) { return c.loader.Data() }

// Release drops the chapter's cached body.
func (c *Chapter) Release() { c.loader.Release() }

// Asset is a non-chapter container entry (almost always an image), with
// the same lazy-load lifecycle as Chapter minus the chapter-only fields.
type Asset struct {
	ID        string
	FileName  string
	MediaType string

	loader *loader
}

// NewAsset builds an Asset whose body is produced lazily by load.
func NewAsset(fileName, mediaType string, load func() ([]byte, error)) *Asset {
	return &Asset{FileName: fileName, MediaType: mediaType, loader: newLoader(load)}
}

// Data returns the asset's raw bytes, loading it on first call.
func (a *Asset) Data() ([]byte, error) { return a.loader.Data() }

// Release drops the asset's cached bytes.
func (a *Asset) Release() { a.loader.Release() }

// Nav is one node of the book's table-of-contents forest, per spec.md §3.
// FileName targets a Chapter's FileName, optionally with a "#fragment".
type Nav struct {
	ID       string
	Title    string
	FileName string
	Children []*Nav
}
