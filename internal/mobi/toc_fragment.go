package mobi

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuanying/duallit/internal/xmlutil"
)

// NCXEntry is one node of the table of contents: a label, the byte offset
// it points to in the decompressed text body, and nested children.
type NCXEntry struct {
	Label    string
	FilePos  uint32
	Children []NCXEntry
}

// GuideReference is a single <reference> inside the book's <guide>.
type GuideReference struct {
	Type    string
	Title   string
	FilePos uint32
}

// GenerateGuide renders the <guide> element placed in the book's <head>,
// per spec.md §4.2.7 step 1. filepos is emitted as a 10-digit zero-padded
// decimal so it has a fixed width and can be back-patched in place once the
// referenced section's true offset is known.
func GenerateGuide(refs []GuideReference) []byte {
	if len(refs) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("<guide>")
	for _, ref := range refs {
		fmt.Fprintf(&b, `<reference type="%s" title="%s" filepos="%010d"/>`,
			html.EscapeString(ref.Type), html.EscapeString(ref.Title), ref.FilePos)
	}
	b.WriteString("</guide>")
	return []byte(b.String())
}

// FindGuideFilePos scans decoded HTML for the first <guide><reference
// type=typ .../></guide> entry and returns its filepos. Per spec.md §4.2.5
// the filepos attribute value may be single- or double-quoted, or bare
// decimal.
func FindGuideFilePos(body []byte, typ string) (uint32, bool) {
	raw := string(body)
	guideStart := strings.Index(raw, "<guide>")
	if guideStart < 0 {
		return 0, false
	}
	guideEnd := strings.Index(raw[guideStart:], "</guide>")
	if guideEnd < 0 {
		return 0, false
	}
	section := raw[guideStart : guideStart+guideEnd]

	for _, m := range xmlutil.FindTags(section, "reference") {
		attrs := xmlutil.ParseAttrsTolerant("reference " + m.Body)
		if !strings.EqualFold(attrs["type"], typ) {
			continue
		}
		pos, err := xmlutil.MustAttrUint(attrs, "filepos")
		if err != nil {
			continue
		}
		return uint32(pos), true
	}
	return 0, false
}

// EmbedTOC inlines entries into htmlBody as the guide/nav pair spec.md
// §4.2.7 step 1 describes: a <guide><reference type="toc" filepos=.../>
// </guide> inserted right after the opening <head>, and the reader-facing
// nav fragment itself appended just before </body>. entries' FilePos values
// must already be resolved against htmlBody (i.e. computed before this
// call); EmbedTOC shifts them by the guide's byte length since the guide is
// spliced in ahead of them. Returns htmlBody unchanged if entries is empty.
func EmbedTOC(htmlBody []byte, entries []NCXEntry) []byte {
	if len(entries) == 0 {
		return htmlBody
	}

	insertAt := 0
	if headIdx := bytes.Index(htmlBody, []byte("<head>")); headIdx >= 0 {
		insertAt = headIdx + len("<head>")
	}

	const tocGuideTitle = "Table of Contents"
	shift := uint32(len(GenerateGuide([]GuideReference{{Type: "toc", Title: tocGuideTitle}})))
	shiftedEntries := shiftTOCEntries(entries, shift, uint32(insertAt))
	fragment := GenerateTOCFragment(shiftedEntries)

	bodyCloseIdx := bytes.Index(htmlBody[insertAt:], []byte("</body>"))
	var tocFilePos uint32
	if bodyCloseIdx >= 0 {
		tocFilePos = uint32(insertAt+bodyCloseIdx) + shift
	} else {
		tocFilePos = uint32(len(htmlBody)) + shift
	}
	guide := GenerateGuide([]GuideReference{{Type: "toc", Title: tocGuideTitle, FilePos: tocFilePos}})

	out := make([]byte, 0, len(htmlBody)+len(guide)+len(fragment))
	out = append(out, htmlBody[:insertAt]...)
	out = append(out, guide...)
	if bodyCloseIdx >= 0 {
		out = append(out, htmlBody[insertAt:insertAt+bodyCloseIdx]...)
		out = append(out, fragment...)
		out = append(out, htmlBody[insertAt+bodyCloseIdx:]...)
	} else {
		out = append(out, htmlBody[insertAt:]...)
		out = append(out, fragment...)
	}
	return out
}

func shiftTOCEntries(entries []NCXEntry, shift, insertAt uint32) []NCXEntry {
	out := make([]NCXEntry, len(entries))
	for i, e := range entries {
		pos := e.FilePos
		if pos >= insertAt {
			pos += shift
		}
		out[i] = NCXEntry{Label: e.Label, FilePos: pos, Children: shiftTOCEntries(e.Children, shift, insertAt)}
	}
	return out
}

// ParseGuide scans decoded HTML for every <guide><reference .../></guide>
// entry and returns them all, in document order.
func ParseGuide(body []byte) []GuideReference {
	raw := string(body)
	guideStart := strings.Index(raw, "<guide>")
	if guideStart < 0 {
		return nil
	}
	guideEnd := strings.Index(raw[guideStart:], "</guide>")
	if guideEnd < 0 {
		return nil
	}
	section := raw[guideStart : guideStart+guideEnd]

	var refs []GuideReference
	for _, m := range xmlutil.FindTags(section, "reference") {
		attrs := xmlutil.ParseAttrsTolerant("reference " + m.Body)
		pos, err := xmlutil.MustAttrUint(attrs, "filepos")
		if err != nil {
			continue
		}
		refs = append(refs, GuideReference{
			Type:    attrs["type"],
			Title:   html.UnescapeString(attrs["title"]),
			FilePos: uint32(pos),
		})
	}
	return refs
}

// GenerateTOCFragment renders entries as the reader-facing nav fragment
// described in spec.md §4.2.5: each entry is a <p><a filepos=...>label</a>
// </p>; a run of child entries immediately following a <p> is wrapped in
// one <blockquote>.
func GenerateTOCFragment(entries []NCXEntry) []byte {
	var b strings.Builder
	writeTOCEntries(&b, entries)
	return []byte(b.String())
}

func writeTOCEntries(b *strings.Builder, entries []NCXEntry) {
	for _, e := range entries {
		fmt.Fprintf(b, `<p><a filepos="%010d">%s</a></p>`, e.FilePos, html.EscapeString(e.Label))
		if len(e.Children) > 0 {
			b.WriteString("<blockquote>")
			writeTOCEntries(b, e.Children)
			b.WriteString("</blockquote>")
		}
	}
}

// ParseTOCFragment reconstructs nested NCXEntries from the <p>/<blockquote>
// markup GenerateTOCFragment emits, per spec.md §4.2.5: a <blockquote>
// occurring between two <p> siblings holds the children of the preceding
// <p>.
func ParseTOCFragment(raw string) ([]NCXEntry, error) {
	entries, _, err := parseTOCSiblings(raw, 0)
	return entries, err
}

func parseTOCSiblings(raw string, pos int) ([]NCXEntry, int, error) {
	var entries []NCXEntry
	for pos < len(raw) {
		pTag := indexFrom(raw, pos, "<p>")
		bqOpen := indexFrom(raw, pos, "<blockquote>")
		bqClose := indexFrom(raw, pos, "</blockquote>")

		next, kind := -1, ""
		for _, cand := range []struct {
			idx  int
			kind string
		}{{pTag, "p"}, {bqOpen, "open"}, {bqClose, "close"}} {
			if cand.idx >= 0 && (next == -1 || cand.idx < next) {
				next, kind = cand.idx, cand.kind
			}
		}
		if next < 0 {
			return entries, len(raw), nil
		}

		switch kind {
		case "p":
			closeIdx := strings.Index(raw[next:], "</p>")
			if closeIdx < 0 {
				return entries, next, fmt.Errorf("mobi: unterminated <p> in toc fragment")
			}
			pBody := raw[next+len("<p>") : next+closeIdx]
			if entry, perr := parseTOCAnchor(pBody); perr == nil {
				entries = append(entries, entry)
			}
			pos = next + closeIdx + len("</p>")
		case "open":
			if len(entries) == 0 {
				pos = next + len("<blockquote>")
				continue
			}
			children, afterIdx, cerr := parseTOCSiblings(raw, next+len("<blockquote>"))
			if cerr != nil {
				return entries, afterIdx, cerr
			}
			entries[len(entries)-1].Children = children
			pos = afterIdx
		case "close":
			return entries, next + len("</blockquote>"), nil
		}
	}
	return entries, pos, nil
}

func parseTOCAnchor(pBody string) (NCXEntry, error) {
	aStart := strings.Index(pBody, "<a ")
	if aStart < 0 {
		return NCXEntry{}, fmt.Errorf("mobi: <p> with no anchor in toc fragment")
	}
	gt := strings.IndexByte(pBody[aStart:], '>')
	if gt < 0 {
		return NCXEntry{}, fmt.Errorf("mobi: unterminated <a> in toc fragment")
	}
	attrs := xmlutil.ParseAttrsTolerant(pBody[aStart+1 : aStart+gt])
	pos, err := xmlutil.MustAttrUint(attrs, "filepos")
	if err != nil {
		return NCXEntry{}, err
	}
	label := ""
	if closeA := strings.Index(pBody[aStart+gt:], "</a>"); closeA >= 0 {
		label = html.UnescapeString(pBody[aStart+gt+1 : aStart+gt+closeA])
	}
	return NCXEntry{Label: label, FilePos: uint32(pos)}, nil
}

func indexFrom(raw string, pos int, sub string) int {
	idx := strings.Index(raw[pos:], sub)
	if idx < 0 {
		return -1
	}
	return pos + idx
}
