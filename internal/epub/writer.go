package epub

import (
	"bytes"
	"fmt"
	"html"
	"strconv"
	"strings"
)

// PackageConfig holds everything GenerateOPF needs to emit a complete EPUB 3
// package document with an EPUB 2.0 guide for backward compatibility.
type PackageConfig struct {
	Metadata     Metadata
	ManifestItem []ManifestItem // in manifest order
	Spine        []SpineItem
	NCXItemID    string // manifest ID of the .ncx item (empty to omit toc attr)
	NavItemID    string // manifest ID of the EPUB3 nav document
	CoverItemID  string // manifest ID of the cover image, for the EPUB2 meta
	ModifiedTime string // ISO-8601 timestamp for the dcterms:modified meta
}

const opfNamespace = "http://www.idpf.org/2007/opf"
const dcNamespace = "http://purl.org/dc/elements/1.1/"

// GenerateOPF renders a complete content.opf package document from cfg,
// writing both EPUB 3 metadata and an EPUB 2.0-compatible meta name="cover"
// fallback so readers of either generation can locate the cover image.
func GenerateOPF(cfg PackageConfig) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(fmt.Sprintf(`<package xmlns=%q version="3.0" unique-identifier="book-id">`+"\n", opfNamespace))

	buf.WriteString(fmt.Sprintf(`  <metadata xmlns:dc=%q xmlns:opf=%q>`+"\n", dcNamespace, opfNamespace))
	buf.WriteString(fmt.Sprintf("    <dc:identifier id=\"book-id\">%s</dc:identifier>\n", html.EscapeString(cfg.Metadata.Identifier)))
	buf.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", html.EscapeString(cfg.Metadata.Title)))
	if cfg.Metadata.Language != "" {
		buf.WriteString(fmt.Sprintf("    <dc:language>%s</dc:language>\n", html.EscapeString(cfg.Metadata.Language)))
	}
	for i, creator := range cfg.Metadata.Creators {
		id := fmt.Sprintf("creator-%d", i+1)
		buf.WriteString(fmt.Sprintf("    <dc:creator id=%q>%s</dc:creator>\n", id, html.EscapeString(creator.Name)))
		if creator.Role != "" {
			buf.WriteString(fmt.Sprintf("    <meta refines=\"#%s\" property=\"role\" scheme=\"marc:relators\">%s</meta>\n", id, html.EscapeString(creator.Role)))
		}
	}
	if cfg.Metadata.Publisher != "" {
		buf.WriteString(fmt.Sprintf("    <dc:publisher>%s</dc:publisher>\n", html.EscapeString(cfg.Metadata.Publisher)))
	}
	if cfg.Metadata.Date != "" {
		buf.WriteString(fmt.Sprintf("    <dc:date>%s</dc:date>\n", html.EscapeString(cfg.Metadata.Date)))
	}
	if cfg.Metadata.Description != "" {
		buf.WriteString(fmt.Sprintf("    <dc:description>%s</dc:description>\n", html.EscapeString(cfg.Metadata.Description)))
	}
	for _, subject := range cfg.Metadata.Subjects {
		buf.WriteString(fmt.Sprintf("    <dc:subject>%s</dc:subject>\n", html.EscapeString(subject)))
	}
	if cfg.Metadata.Rights != "" {
		buf.WriteString(fmt.Sprintf("    <dc:rights>%s</dc:rights>\n", html.EscapeString(cfg.Metadata.Rights)))
	}
	if cfg.Metadata.Contributor != "" {
		buf.WriteString(fmt.Sprintf("    <dc:contributor>%s</dc:contributor>\n", html.EscapeString(cfg.Metadata.Contributor)))
	}
	if cfg.Metadata.Format != "" {
		buf.WriteString(fmt.Sprintf("    <dc:format>%s</dc:format>\n", html.EscapeString(cfg.Metadata.Format)))
	}
	if cfg.ModifiedTime != "" {
		buf.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n", html.EscapeString(cfg.ModifiedTime)))
	}
	if cfg.CoverItemID != "" {
		buf.WriteString(fmt.Sprintf("    <meta name=\"cover\" content=%q/>\n", cfg.CoverItemID))
	}
	buf.WriteString("  </metadata>\n")

	buf.WriteString("  <manifest>\n")
	for _, item := range cfg.ManifestItem {
		props := ""
		if len(item.Properties) > 0 {
			props = fmt.Sprintf(" properties=%q", strings.Join(item.Properties, " "))
		}
		buf.WriteString(fmt.Sprintf("    <item id=%q href=%q media-type=%q%s/>\n", item.ID, item.Href, item.MediaType, props))
	}
	buf.WriteString("  </manifest>\n")

	tocAttr := ""
	if cfg.NCXItemID != "" {
		tocAttr = fmt.Sprintf(" toc=%q", cfg.NCXItemID)
	}
	buf.WriteString(fmt.Sprintf("  <spine%s>\n", tocAttr))
	for _, ref := range cfg.Spine {
		linear := ""
		if !ref.Linear {
			linear = ` linear="no"`
		}
		buf.WriteString(fmt.Sprintf("    <itemref idref=%q%s/>\n", ref.IDRef, linear))
	}
	buf.WriteString("  </spine>\n")

	buf.WriteString("</package>\n")
	return buf.Bytes()
}

// NCXConfig holds the fields GenerateNCX needs to render a toc.ncx document.
type NCXConfig struct {
	UID       string
	Title     string
	NavPoints []NavPoint
}

// GenerateNCX renders a toc.ncx navigation document (EPUB 2.0 compatibility)
// from a flat or nested NavPoint tree.
func GenerateNCX(cfg NCXConfig) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">` + "\n")
	buf.WriteString("  <head>\n")
	buf.WriteString(fmt.Sprintf("    <meta name=\"dtb:uid\" content=%q/>\n", cfg.UID))
	buf.WriteString(fmt.Sprintf("    <meta name=\"dtb:depth\" content=\"%d\"/>\n", ncxDepth(cfg.NavPoints)))
	buf.WriteString("  </head>\n")
	buf.WriteString(fmt.Sprintf("  <docTitle><text>%s</text></docTitle>\n", html.EscapeString(cfg.Title)))
	buf.WriteString("  <navMap>\n")
	order := 0
	writeNavPoints(&buf, cfg.NavPoints, 2, &order)
	buf.WriteString("  </navMap>\n")
	buf.WriteString("</ncx>\n")
	return buf.Bytes()
}

func ncxDepth(points []NavPoint) int {
	depth := 1
	for _, p := range points {
		if len(p.Children) > 0 {
			if d := ncxDepth(p.Children) + 1; d > depth {
				depth = d
			}
		}
	}
	return depth
}

func writeNavPoints(buf *bytes.Buffer, points []NavPoint, indent int, order *int) {
	pad := strings.Repeat("  ", indent)
	for _, p := range points {
		*order++
		id := p.ID
		if id == "" {
			id = "navPoint-" + strconv.Itoa(*order)
		}
		src := p.ContentPath
		if p.Fragment != "" {
			src += "#" + p.Fragment
		}
		buf.WriteString(fmt.Sprintf("%s<navPoint id=%q playOrder=\"%d\">\n", pad, id, *order))
		buf.WriteString(fmt.Sprintf("%s  <navLabel><text>%s</text></navLabel>\n", pad, html.EscapeString(p.Label)))
		buf.WriteString(fmt.Sprintf("%s  <content src=%q/>\n", pad, src))
		if len(p.Children) > 0 {
			writeNavPoints(buf, p.Children, indent+1, order)
		}
		buf.WriteString(pad + "</navPoint>\n")
	}
}

// GenerateNav renders an EPUB 3 nav.xhtml document from a NavPoint tree.
func GenerateNav(title string, points []NavPoint) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	buf.WriteString("<head><title>" + html.EscapeString(title) + "</title></head>\n")
	buf.WriteString("<body>\n")
	buf.WriteString(`  <nav epub:type="toc" id="toc">` + "\n")
	buf.WriteString("    <h1>" + html.EscapeString(title) + "</h1>\n")
	writeNavList(&buf, points, 2)
	buf.WriteString("  </nav>\n")
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}

func writeNavList(buf *bytes.Buffer, points []NavPoint, indent int) {
	pad := strings.Repeat("  ", indent)
	buf.WriteString(pad + "<ol>\n")
	for _, p := range points {
		href := p.ContentPath
		if p.Fragment != "" {
			href += "#" + p.Fragment
		}
		buf.WriteString(fmt.Sprintf("%s  <li><a href=%q>%s</a>", pad, href, html.EscapeString(p.Label)))
		if len(p.Children) > 0 {
			buf.WriteString("\n")
			writeNavList(buf, p.Children, indent+2)
			buf.WriteString(pad + "  </li>\n")
		} else {
			buf.WriteString("</li>\n")
		}
	}
	buf.WriteString(pad + "</ol>\n")
}

// GenerateContainerXML renders META-INF/container.xml pointing at opfPath.
func GenerateContainerXML(opfPath string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container" version="1.0">` + "\n" +
		`  <rootfiles>` + "\n" +
		fmt.Sprintf(`    <rootfile full-path=%q media-type="application/oebps-package+xml"/>`, opfPath) + "\n" +
		`  </rootfiles>` + "\n" +
		`</container>` + "\n")
}
