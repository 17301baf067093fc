package book

import (
	"strings"

	"github.com/yuanying/duallit/internal/epub"
)

// FromEPUB builds a Book from an already-open EPUB container, its parsed
// OPF, and its (optional) table of contents. Unlike FromMOBI, Chapter and
// Asset bodies are genuinely lazy here: each loader reads back through
// reader.ReadFile only when Data() is first called, per spec.md §3's
// "loaded on first data() call through the back-reference to the archive
// handle" lifecycle.
func FromEPUB(reader *epub.EPUBReader, opf *epub.OPF, ncx *epub.NCX) (*Book, error) {
	handle := NewHandle(epubArchiveReader{reader})
	b := New(handle)
	b.Version = "2.0"
	applyOPFMetadata(b, opf.Metadata)

	for _, spineItem := range opf.Spine {
		item, ok := opf.Manifest[spineItem.IDRef]
		if !ok || !isChapterMediaType(item.MediaType) {
			continue
		}
		href := item.Href
		ch := NewChapter(href, func() ([]byte, error) { return handle.read(href) })
		ch.ID = item.ID
		ch.MediaType = item.MediaType
		b.Chapters = append(b.Chapters, ch)
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if isChapterMediaType(item.MediaType) {
			continue
		}
		href := item.Href
		asset := NewAsset(href, item.MediaType, func() ([]byte, error) { return handle.read(href) })
		asset.ID = item.ID
		b.Assets = append(b.Assets, asset)
		if item.ID == opf.Metadata.CoverID {
			b.Cover = asset
		}
	}

	if ncx != nil {
		b.Nav = navFromPoints(ncx.NavPoints)
	}

	return b, nil
}

// epubArchiveReader adapts *epub.EPUBReader to the archive.Reader interface
// so FromEPUB's lazy loaders can read through a Handle like any other
// archive-backed book, instead of bypassing it with a direct closure.
type epubArchiveReader struct {
	r *epub.EPUBReader
}

func (a epubArchiveReader) ReadFile(name string) ([]byte, error) { return a.r.ReadFile(name) }
func (a epubArchiveReader) Exists(name string) bool {
	_, ok := a.r.Files()[name]
	return ok
}
func (a epubArchiveReader) Names() []string {
	files := a.r.Files()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	return names
}
func (a epubArchiveReader) Close() error { return a.r.Close() }

func navFromPoints(points []epub.NavPoint) []*Nav {
	out := make([]*Nav, 0, len(points))
	for _, p := range points {
		fileName := p.ContentPath
		if p.Fragment != "" {
			fileName += "#" + p.Fragment
		}
		n := &Nav{ID: p.ID, Title: p.Label, FileName: fileName, Children: navFromPoints(p.Children)}
		out = append(out, n)
	}
	return out
}

func applyOPFMetadata(b *Book, md epub.Metadata) {
	b.Title = md.Title
	b.Identifier = md.Identifier
	b.Description = md.Description
	b.Date = md.Date
	b.Format = md.Format
	b.Publisher = md.Publisher
	b.LastModify = md.LastModify
	b.Contributor = md.Contributor

	names := make([]string, 0, len(md.Creators))
	for _, c := range md.Creators {
		names = append(names, c.Name)
	}
	b.Creator = strings.Join(names, "; ")
	b.Subject = strings.Join(md.Subjects, "; ")

	if md.Language != "" {
		b.Metadata = append(b.Metadata, MetadataEntry{Name: "language", Value: md.Language})
	}
	if md.Rights != "" {
		b.Metadata = append(b.Metadata, MetadataEntry{Name: "rights", Value: md.Rights})
	}
}

func isChapterMediaType(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || mediaType == "text/html"
}
