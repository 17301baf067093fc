// Package xmlutil wraps encoding/xml's token stream into a pull-parse shape
// (start/end/text events; see Token for the Empty kind) and provides a raw
// markup scanner whose attribute lookups tolerate the unquoted or
// single-quoted attribute values real-world ebook producers emit. MOBI's
// in-text <guide>/<a filepos=NNNN> markup is frequently not well-formed XML
// at all, so FindTags and ParseAttrsTolerant work directly against raw bytes
// rather than through encoding/xml. The EPUB OPF/NCX parsers do not use
// Reader.
package xmlutil

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// TokenKind classifies a pulled event.
type TokenKind int

const (
	Start TokenKind = iota
	End
	Text
	Empty
)

// Token is one pulled XML event. Attrs is populated for Start; Data holds
// character data for Text. Next never returns an Empty token: encoding/xml
// reports a self-closing tag as a Start followed by an End.
type Token struct {
	Kind  TokenKind
	Name  string
	Attrs map[string]string
	Data  string
}

// Attr looks up an attribute by local name (namespace prefix ignored).
func (t Token) Attr(name string) (string, bool) {
	v, ok := t.Attrs[name]
	return v, ok
}

// Reader pulls Tokens out of an encoding/xml.Decoder.
type Reader struct {
	dec *xml.Decoder
}

// New wraps r. Decoder.Strict is relaxed (AutoClose/Entity) so the reader
// tolerates the loosely-formed XHTML fragments MOBI/EPUB producers emit.
func New(r io.Reader) *Reader {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	return &Reader{dec: dec}
}

// Next pulls the next token, returning io.EOF when the stream is exhausted.
func (r *Reader) Next() (Token, error) {
	tok, err := r.dec.Token()
	if err != nil {
		return Token{}, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		attrs := make(map[string]string, len(t.Attr))
		for _, a := range t.Attr {
			attrs[a.Name.Local] = a.Value
		}
		return Token{Kind: Start, Name: t.Name.Local, Attrs: attrs}, nil
	case xml.EndElement:
		return Token{Kind: End, Name: t.Name.Local}, nil
	case xml.CharData:
		return Token{Kind: Text, Data: string(t)}, nil
	default:
		return r.Next()
	}
}

// ParseAttrsTolerant scans a raw tag's attribute list the way MOBI's inline
// toc markup needs: values may be double-quoted, single-quoted, or entirely
// unquoted decimal (spec.md §4.2.5 — "filepos attribute values may be quoted
// ('/") or unquoted decimal"). tag is the bytes between "<" and the closing
// ">" (exclusive of both), e.g. `a filepos=0001234` or `img recindex="00012"`.
func ParseAttrsTolerant(tag string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	n := len(tag)

	// Skip the element name.
	for i < n && !isSpace(tag[i]) {
		i++
	}

	for i < n {
		for i < n && isSpace(tag[i]) {
			i++
		}
		if i >= n {
			break
		}
		nameStart := i
		for i < n && tag[i] != '=' && !isSpace(tag[i]) {
			i++
		}
		name := tag[nameStart:i]
		for i < n && isSpace(tag[i]) {
			i++
		}
		if i >= n || tag[i] != '=' {
			// Boolean attribute with no value; skip to next whitespace.
			for i < n && !isSpace(tag[i]) {
				i++
			}
			if name != "" {
				attrs[name] = ""
			}
			continue
		}
		i++ // consume '='
		for i < n && isSpace(tag[i]) {
			i++
		}
		var value string
		if i < n && (tag[i] == '"' || tag[i] == '\'') {
			quote := tag[i]
			i++
			start := i
			for i < n && tag[i] != quote {
				i++
			}
			value = tag[start:i]
			if i < n {
				i++ // consume closing quote
			}
		} else {
			start := i
			for i < n && !isSpace(tag[i]) {
				i++
			}
			value = tag[start:i]
		}
		if name != "" {
			attrs[name] = value
		}
	}
	return attrs
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// FindTags scans raw (possibly non-well-formed) markup for every occurrence
// of the given element name and returns each one's tag body (the text
// between "<name" and the closing ">", exclusive) together with its start
// offset in data. Used for MOBI's <img recindex=...> and <a filepos=...>
// scans, which must work over text that is not necessarily valid XML.
func FindTags(data string, name string) []TagMatch {
	var out []TagMatch
	open := "<" + name
	i := 0
	for {
		idx := strings.Index(data[i:], open)
		if idx < 0 {
			break
		}
		start := i + idx
		after := start + len(open)
		if after < len(data) && !isSpace(data[after]) && data[after] != '>' && data[after] != '/' {
			// e.g. "<article" shouldn't match tag name "a".
			i = after
			continue
		}
		end := strings.IndexByte(data[after:], '>')
		if end < 0 {
			break
		}
		tagEnd := after + end
		body := data[after:tagEnd]
		body = strings.TrimSuffix(body, "/")
		out = append(out, TagMatch{Offset: start, Body: strings.TrimSpace(body)})
		i = tagEnd + 1
	}
	return out
}

// TagMatch is one raw-scan tag occurrence.
type TagMatch struct {
	Offset int
	Body   string
}

// MustAttrUint parses an attribute value as an unsigned decimal, returning
// an error with the attribute name for diagnostics.
func MustAttrUint(attrs map[string]string, name string) (uint64, error) {
	v, ok := attrs[name]
	if !ok {
		return 0, fmt.Errorf("xmlutil: missing attribute %q", name)
	}
	var n uint64
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("xmlutil: attribute %q=%q is not decimal", name, v)
		}
		n = n*10 + uint64(c-'0')
	}
	return n, nil
}
