package epub

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/duallit/internal/pathutil"
)

// Content represents a parsed XHTML content file
type Content struct {
	ID        string            // Manifest ID
	Path      string            // File path
	Document  *goquery.Document // Parsed HTML document
	CSSLinks  []string          // Referenced CSS file paths
	ImageRefs []string          // Referenced image paths
	BodyAttrs map[string]string // Attributes carried on the <body> element
}

// LoadContent loads and parses an XHTML content file
// id: manifest item ID
// path: file path within EPUB (used for relative path resolution)
// content: XHTML file content
func LoadContent(id, path string, content []byte) (*Content, error) {
	// Parse XHTML using goquery
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML: %w", err)
	}

	c := &Content{
		ID:        id,
		Path:      path,
		Document:  doc,
		CSSLinks:  []string{},
		ImageRefs: []string{},
		BodyAttrs: map[string]string{},
	}

	relevantBodyAttrs := map[string]bool{"class": true, "dir": true, "lang": true, "xml:lang": true}
	if body := doc.Find("body").First(); body.Length() > 0 {
		for _, attr := range body.Nodes[0].Attr {
			if relevantBodyAttrs[attr.Key] {
				c.BodyAttrs[attr.Key] = attr.Val
			}
		}
	}
	if _, hasLang := c.BodyAttrs["lang"]; !hasLang {
		if _, hasXMLLang := c.BodyAttrs["xml:lang"]; !hasXMLLang {
			if htmlEl := doc.Find("html").First(); htmlEl.Length() > 0 {
				for _, attr := range htmlEl.Nodes[0].Attr {
					if attr.Key == "lang" || attr.Key == "xml:lang" {
						c.BodyAttrs[attr.Key] = attr.Val
					}
				}
			}
		}
	}

	// Get base directory for resolving relative paths
	baseDir := pathutil.Dir(path)

	// Collect CSS links
	doc.Find("link[rel='stylesheet']").Each(func(i int, s *goquery.Selection) {
		if href, exists := s.Attr("href"); exists {
			resolved := resolvePath(baseDir, href)
			c.CSSLinks = append(c.CSSLinks, resolved)
		}
	})

	// Collect image references
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		if src, exists := s.Attr("src"); exists {
			resolved := resolvePath(baseDir, src)
			c.ImageRefs = append(c.ImageRefs, resolved)
		}
	})

	return c, nil
}

// resolvePath resolves a relative path against a base directory
// baseDir: base directory (e.g., "text" for "text/chapter1.xhtml")
// relPath: relative path (e.g., "../images/photo.jpg")
// returns: resolved path (e.g., "images/photo.jpg")
func resolvePath(baseDir, relPath string) string {
	if baseDir == "" {
		return pathutil.Clean(relPath)
	}
	return pathutil.Clean(baseDir + "/" + relPath)
}
