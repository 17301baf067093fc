package converter

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuanying/duallit/internal/archive"
	"github.com/yuanying/duallit/internal/book"
	"github.com/yuanying/duallit/internal/epub"
	"github.com/yuanying/duallit/internal/mobi"
)

// MOBIToEPUBOptions holds options for the MOBI to EPUB conversion pipeline,
// the direction spec.md §4.4 describes.
type MOBIToEPUBOptions struct {
	InputPath  string
	OutputPath string
	Logger     *slog.Logger
}

// MOBIToEPUBPipeline orchestrates the MOBI to EPUB conversion: parse the
// MOBI file, mediate it through the unified book.Book model, and render
// that model out as a complete EPUB 3 container.
type MOBIToEPUBPipeline struct {
	Options MOBIToEPUBOptions
}

// NewMOBIToEPUBPipeline creates a new MOBI-to-EPUB conversion pipeline.
func NewMOBIToEPUBPipeline(opts MOBIToEPUBOptions) *MOBIToEPUBPipeline {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &MOBIToEPUBPipeline{Options: opts}
}

const epubContentDir = "OEBPS"

// Convert reads the MOBI file at Options.InputPath and writes an equivalent
// EPUB 3 container to Options.OutputPath.
func (p *MOBIToEPUBPipeline) Convert() error {
	log := p.Options.Logger

	doc, err := mobi.Read(p.Options.InputPath, func(path string) (io.ReadSeeker, func() error, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	})
	if err != nil {
		return fmt.Errorf("read MOBI: %w", err)
	}

	b, err := book.FromMOBI(doc)
	if err != nil {
		return fmt.Errorf("build book model: %w", err)
	}
	defer b.Close()

	log.Info("converting", "title", b.Title, "chapters", len(b.Chapters), "assets", len(b.Assets))

	w, err := archive.CreateZip(p.Options.OutputPath)
	if err != nil {
		return fmt.Errorf("create output container: %w", err)
	}
	defer w.Close()

	if err := w.WriteFile("mimetype", zip.Store, []byte("application/epub+zip")); err != nil {
		return fmt.Errorf("write mimetype: %w", err)
	}
	opfPath := epubContentDir + "/content.opf"
	if err := w.WriteFile("META-INF/container.xml", zip.Deflate, epub.GenerateContainerXML(opfPath)); err != nil {
		return fmt.Errorf("write container.xml: %w", err)
	}

	manifest, spine, err := writeChapters(w, b)
	if err != nil {
		return err
	}
	assetManifest, coverItemID := writeAssets(w, b, log)
	manifest = append(manifest, assetManifest...)

	navPoints := navToNavPoints(b.Nav)
	manifest = append(manifest, epub.ManifestItem{ID: "nav", Href: "nav.xhtml", MediaType: "application/xhtml+xml", Properties: []string{"nav"}})
	if err := w.WriteFile(epubContentDir+"/nav.xhtml", zip.Deflate, epub.GenerateNav(b.Title, navPoints)); err != nil {
		return fmt.Errorf("write nav.xhtml: %w", err)
	}
	manifest = append(manifest, epub.ManifestItem{ID: "ncx", Href: "toc.ncx", MediaType: "application/x-dtbncx+xml"})
	if err := w.WriteFile(epubContentDir+"/toc.ncx", zip.Deflate, epub.GenerateNCX(epub.NCXConfig{UID: b.Identifier, Title: b.Title, NavPoints: navPoints})); err != nil {
		return fmt.Errorf("write toc.ncx: %w", err)
	}

	opf := epub.GenerateOPF(epub.PackageConfig{
		Metadata:     metadataFromBook(b),
		ManifestItem: manifest,
		Spine:        spine,
		NCXItemID:    "ncx",
		NavItemID:    "nav",
		CoverItemID:  coverItemID,
		ModifiedTime: b.LastModify,
	})
	if err := w.WriteFile(opfPath, zip.Deflate, opf); err != nil {
		return fmt.Errorf("write content.opf: %w", err)
	}

	return nil
}

func metadataFromBook(b *book.Book) epub.Metadata {
	md := epub.Metadata{
		Title:       b.Title,
		Identifier:  b.Identifier,
		Publisher:   b.Publisher,
		Date:        b.Date,
		Description: b.Description,
		Format:      b.Format,
		Contributor: b.Contributor,
		LastModify:  b.LastModify,
	}
	if b.Creator != "" {
		for _, name := range strings.Split(b.Creator, "; ") {
			md.Creators = append(md.Creators, epub.Creator{Name: name, Role: "aut"})
		}
	}
	if b.Subject != "" {
		md.Subjects = strings.Split(b.Subject, "; ")
	}
	for _, m := range b.Metadata {
		if m.Name == "language" {
			md.Language = m.Value
		}
		if m.Name == "rights" {
			md.Rights = m.Value
		}
	}
	return md
}

// imgRecIndexRe matches <img ... recindex="NNNNN" ...> attributes so they
// can be rewritten to src="..." for the EPUB destination, per spec.md §4.4.
var imgRecIndexRe = regexp.MustCompile(`(<img\s[^>]*?)recindex=["']?0*(\d+)["']?([^>]*>)`)

func writeChapters(w archive.Writer, b *book.Book) ([]epub.ManifestItem, []epub.SpineItem, error) {
	var manifest []epub.ManifestItem
	var spine []epub.SpineItem
	for i, ch := range b.Chapters {
		data, err := ch.Data()
		if err != nil {
			return nil, nil, fmt.Errorf("load chapter %s: %w", ch.FileName, err)
		}
		depth := strings.Count(ch.FileName, "/")
		rewritten := rewriteRecIndex(data, depth, b.Assets)
		if err := w.WriteFile(epubContentDir+"/"+ch.FileName, zip.Deflate, rewritten); err != nil {
			return nil, nil, fmt.Errorf("write chapter %s: %w", ch.FileName, err)
		}
		id := ch.ID
		if id == "" {
			id = fmt.Sprintf("chapter%03d", i+1)
		}
		manifest = append(manifest, epub.ManifestItem{ID: id, Href: ch.FileName, MediaType: "application/xhtml+xml"})
		spine = append(spine, epub.SpineItem{IDRef: id, Linear: true})
	}
	return manifest, spine, nil
}

func writeAssets(w archive.Writer, b *book.Book, log *slog.Logger) ([]epub.ManifestItem, string) {
	var manifest []epub.ManifestItem
	coverItemID := ""
	for i, asset := range b.Assets {
		data, err := asset.Data()
		if err != nil {
			log.Warn("skipping unreadable asset", "name", asset.FileName, "error", err)
			continue
		}
		href := "image/" + asset.FileName
		if err := w.WriteFile(epubContentDir+"/"+href, zip.Deflate, data); err != nil {
			log.Warn("skipping unwritable asset", "name", asset.FileName, "error", err)
			continue
		}
		id := asset.ID
		if id == "" {
			id = fmt.Sprintf("asset%03d", i+1)
		}
		var props []string
		if asset == b.Cover {
			coverItemID = id
			props = []string{"cover-image"}
		}
		manifest = append(manifest, epub.ManifestItem{ID: id, Href: href, MediaType: asset.MediaType, Properties: props})
	}
	return manifest, coverItemID
}

func rewriteRecIndex(htmlBody []byte, depth int, assets []*book.Asset) []byte {
	prefix := strings.Repeat("../", depth)
	return imgRecIndexRe.ReplaceAllFunc(htmlBody, func(match []byte) []byte {
		sub := imgRecIndexRe.FindSubmatch(match)
		if len(sub) < 4 {
			return match
		}
		idx, err := strconv.Atoi(string(sub[2]))
		if err != nil || idx < 1 || idx > len(assets) {
			return match
		}
		name := assets[idx-1].FileName
		return []byte(string(sub[1]) + `src="` + prefix + "image/" + name + `"` + string(sub[3]))
	})
}

func navToNavPoints(nodes []*book.Nav) []epub.NavPoint {
	out := make([]epub.NavPoint, 0, len(nodes))
	for _, n := range nodes {
		contentPath, fragment, _ := strings.Cut(n.FileName, "#")
		out = append(out, epub.NavPoint{
			ID:          n.ID,
			Label:       n.Title,
			ContentPath: contentPath,
			Fragment:    fragment,
			Children:    navToNavPoints(n.Children),
		})
	}
	return out
}
