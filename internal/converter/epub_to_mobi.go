package converter

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/yuanying/duallit/internal/epub"
	"github.com/yuanying/duallit/internal/mobi"
	"github.com/yuanying/duallit/internal/pathutil"
)

// ConvertOptions holds options for the EPUB to MOBI7 conversion pipeline.
type ConvertOptions struct {
	InputPath         string
	OutputPath        string
	MaxImageWidth     int
	JPEGQuality       int
	MaxImageSizeBytes int
	NoImages          bool
	Strict            bool
	Logger            *slog.Logger
}

// Pipeline orchestrates the EPUB to MOBI7 conversion.
type Pipeline struct {
	Options ConvertOptions
}

// NewPipeline creates a new conversion pipeline.
func NewPipeline(opts ConvertOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Pipeline{Options: opts}
}

// Convert reads the EPUB at Options.InputPath, assembles a single-document
// MOBI7 file, and writes it to Options.OutputPath.
func (p *Pipeline) Convert() error {
	log := p.Options.Logger

	reader, err := epub.Open(p.Options.InputPath)
	if err != nil {
		return fmt.Errorf("open EPUB: %w", err)
	}
	defer reader.Close()

	opfData, err := reader.ReadFile(reader.OPFPath())
	if err != nil {
		return fmt.Errorf("read OPF: %w", err)
	}
	opfDir := pathutil.Dir(reader.OPFPath())
	opf, err := epub.ParseOPF(opfData, opfDir)
	if err != nil {
		return fmt.Errorf("parse OPF: %w", err)
	}

	ncx, err := epub.LoadNCX(reader, opf)
	if err != nil {
		return fmt.Errorf("load NCX: %w", err)
	}

	cover := DetectCoverInfo(opf, reader)

	imageMapper := mobi.NewImageMapper()
	imageOptimizer := NewImageOptimizer(p.Options)
	if !p.Options.NoImages {
		if err := loadImages(reader, opf, cover, imageOptimizer, imageMapper, log); err != nil {
			return err
		}
	}

	builder := NewHTMLBuilder()
	chapterCount := 0
	for _, spineItem := range opf.Spine {
		item, ok := opf.Manifest[spineItem.IDRef]
		if !ok {
			continue
		}
		if item.MediaType != "application/xhtml+xml" && item.MediaType != "text/html" {
			continue
		}
		raw, err := reader.ReadFile(item.Href)
		if err != nil {
			log.Warn("skipping unreadable chapter", "path", item.Href, "error", err)
			continue
		}
		content, err := epub.LoadContent(item.ID, item.Href, raw)
		if err != nil {
			log.Warn("skipping unparsable chapter", "path", item.Href, "error", err)
			continue
		}
		if err := builder.AddChapter(content); err != nil {
			log.Warn("skipping chapter", "path", item.Href, "error", err)
			continue
		}
		chapterCount++
	}
	if chapterCount == 0 {
		return fmt.Errorf("no valid chapters found in %s", p.Options.InputPath)
	}

	if p.Options.NoImages {
		builder.RemoveImages()
	}

	htmlStr, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build HTML: %w", err)
	}

	if !p.Options.NoImages {
		htmlStr = mobi.TransformImageReferences(htmlStr, imageMapper)
	}

	tocGen := NewTOCGenerator(ncx, builder.GetChapterIDs())
	htmlStr = tocGen.InsertInlineTOC(htmlStr)
	finalHTML := []byte(htmlStr)

	tocEntries, err := tocGen.BuildTOCEntries(finalHTML)
	if err != nil {
		return fmt.Errorf("build TOC entries: %w", err)
	}

	var coverIndex *int
	if cover != nil && !p.Options.NoImages {
		if idx, ok := imageMapper.PathToIndex[cover.Href]; ok {
			coverIndex = &idx
		}
	}

	w, err := mobi.NewWriter(mobi.WriterConfig{
		Title:           opf.Metadata.Title,
		HTML:            finalHTML,
		Metadata:        &opf.Metadata,
		ImageRecords:    imageMapper.ImageRecordData(),
		Compression:     mobi.CompressionPalmDoc,
		CoverImageIndex: coverIndex,
		TOCEntries:      convertTOCEntries(tocEntries),
	})
	if err != nil {
		return fmt.Errorf("build writer: %w", err)
	}

	out, err := os.Create(p.Options.OutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	if _, err := w.WriteTo(out); err != nil {
		return fmt.Errorf("write MOBI: %w", err)
	}
	return nil
}

// loadImages reads every image manifest item, optimizes it, and registers it
// in mapper, guaranteeing the cover (if any) is image record 0 so it can be
// referenced by EXTH 201 at a fixed index.
func loadImages(reader *epub.EPUBReader, opf *epub.OPF, cover *CoverInfo, optimizer *ImageOptimizer, mapper *mobi.ImageMapper, log *slog.Logger) error {
	addImage := func(item epub.ManifestItem, isCover bool) {
		raw, err := reader.ReadFile(item.Href)
		if err != nil {
			log.Warn("skipping unreadable image", "path", item.Href, "error", err)
			return
		}
		optimized, err := optimizer.Optimize(item.Href, item.MediaType, raw, isCover)
		if err != nil {
			log.Warn("skipping unoptimizable image", "path", item.Href, "error", err)
			return
		}
		mediaType := formatToMediaType(optimized.Format)
		mapper.AddImage(item.Href, optimized.Data, mediaType)
	}

	if cover != nil {
		if item, ok := opf.Manifest[cover.ManifestID]; ok {
			addImage(item, true)
		}
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if cover != nil && item.ID == cover.ManifestID {
			continue
		}
		if !isImage(item.MediaType) {
			continue
		}
		addImage(item, false)
	}
	return nil
}

func convertTOCEntries(entries []TOCEntry) []mobi.NCXEntry {
	out := make([]mobi.NCXEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, mobi.NCXEntry{
			Label:    e.Label,
			FilePos:  e.FilePos,
			Children: convertTOCEntries(e.Children),
		})
	}
	return out
}
