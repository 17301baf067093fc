package book

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yuanying/duallit/internal/epub"
	"github.com/yuanying/duallit/internal/mobi"
)

// FromMOBI builds a Book from a parsed MOBI document. Per spec.md §4.2.1
// the whole text body is decompressed eagerly at open time, so every
// Chapter/Asset loader below simply closes over an already-materialized
// byte slice; the lazy-loader shape is kept for symmetry with FromEPUB and
// so converter code never has to know which container it came from.
//
// A MOBI file has no discrete per-chapter records: spec.md §4.4 treats
// each navigation (TOC) entry as one "MOBI chapter", bounded by its own
// filepos and the next entry's filepos in document order. FileName for
// both the Chapter and its corresponding Nav node is the chapter's
// ancestor titles joined by "/", per spec.md §4.4's conversion rule.
func FromMOBI(doc *mobi.Document) (*Book, error) {
	b := New(nil)
	b.Version = "MOBI"
	applyMetadata(b, doc.Metadata)

	flat := flattenTOC(doc.TOCEntries, nil)
	boundaries := append([]flatEntry(nil), flat...)
	sortByFilePos(boundaries)

	names := newNameAllocator()
	chapterByFilePos := make(map[uint32]*Chapter, len(flat))
	for i := range boundaries {
		e := &boundaries[i]
		start := e.filePos
		end := uint32(len(doc.HTML))
		if i+1 < len(boundaries) {
			end = boundaries[i+1].filePos
		}
		body := sliceHTML(doc.HTML, start, end)
		fileName := names.allocate(navPath(e.ancestors, e.label))
		ch := NewChapter(fileName, func() ([]byte, error) { return body, nil })
		ch.ID = fmt.Sprintf("ch%03d", i+1)
		ch.Title = e.label
		b.Chapters = append(b.Chapters, ch)
		chapterByFilePos[e.filePos] = ch
	}

	// Re-walk in original (non-flattened) order to assign each nav node to
	// its matching chapter by filepos, preserving the tree's own shape,
	// since chapter ordering (reading/filepos order) need not match the
	// nav tree's visiting order.
	var assignNav func(entries []mobi.NCXEntry) []*Nav
	assignNav = func(entries []mobi.NCXEntry) []*Nav {
		out := make([]*Nav, 0, len(entries))
		for _, e := range entries {
			ch, ok := chapterByFilePos[e.FilePos]
			n := &Nav{Title: e.Label}
			if ok {
				n.ID = ch.ID
				n.FileName = ch.FileName
			}
			n.Children = assignNav(e.Children)
			out = append(out, n)
		}
		return out
	}
	b.Nav = assignNav(doc.TOCEntries)

	for i, img := range doc.Images {
		ext := extensionForMediaType(img.MediaType)
		fileName := names.allocate(fmt.Sprintf("image%04d%s", i+1, ext))
		data := img.Data
		asset := NewAsset(fileName, img.MediaType, func() ([]byte, error) { return data, nil })
		asset.ID = fmt.Sprintf("img%03d", i+1)
		b.Assets = append(b.Assets, asset)
		if i == doc.CoverIndex {
			b.Cover = asset
		}
	}

	return b, nil
}

func applyMetadata(b *Book, md epub.Metadata) {
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

// flatEntry is one TOC entry flattened out of its tree, annotated with the
// chain of ancestor labels above it.
type flatEntry struct {
	label     string
	filePos   uint32
	ancestors []string
}

func flattenTOC(entries []mobi.NCXEntry, ancestors []string) []flatEntry {
	var out []flatEntry
	for _, e := range entries {
		out = append(out, flatEntry{label: e.Label, filePos: e.FilePos, ancestors: ancestors})
		out = append(out, flattenTOC(e.Children, append(append([]string(nil), ancestors...), e.Label))...)
	}
	return out
}

func sortByFilePos(entries []flatEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].filePos < entries[j-1].filePos; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func sliceHTML(html []byte, start, end uint32) []byte {
	if int(start) > len(html) {
		start = uint32(len(html))
	}
	if int(end) > len(html) || end < start {
		end = uint32(len(html))
	}
	out := make([]byte, end-start)
	copy(out, html[start:end])
	return out
}

// navPath joins ancestor titles and the entry's own label with "/", per
// spec.md §4.4, sanitized into a safe filename segment per path component.
func navPath(ancestors []string, label string) string {
	parts := make([]string, 0, len(ancestors)+1)
	for _, a := range ancestors {
		parts = append(parts, sanitizeSegment(a))
	}
	parts = append(parts, sanitizeSegment(label))
	return strings.Join(parts, "/") + ".xhtml"
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		s = "untitled"
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extensionForMediaType(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

// nameAllocator enforces spec.md §3's Chapter invariant that file_name be
// unique within the container, appending a numeric suffix on collision.
type nameAllocator struct {
	seen map[string]int
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{seen: make(map[string]int)}
}

func (n *nameAllocator) allocate(name string) string {
	count := n.seen[name]
	n.seen[name]++
	if count == 0 {
		return name
	}
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return name + "-" + strconv.Itoa(count)
	}
	return name[:dot] + "-" + strconv.Itoa(count) + name[dot:]
}
