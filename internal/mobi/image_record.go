package mobi

import (
	"fmt"
	"regexp"
	"strings"
)

// ImageRecord holds data for a single image record in the AZW3 file.
type ImageRecord struct {
	Data         []byte
	OriginalPath string
	MediaType    string
}

// ImageMapper manages image records and their path-to-index mappings.
type ImageMapper struct {
	Images      []ImageRecord
	PathToIndex map[string]int
}

// NewImageMapper creates a new empty ImageMapper.
func NewImageMapper() *ImageMapper {
	return &ImageMapper{
		Images:      nil,
		PathToIndex: make(map[string]int),
	}
}

// AddImage adds an image to the mapper. Duplicate paths are skipped.
func (m *ImageMapper) AddImage(path string, data []byte, mediaType string) {
	if _, exists := m.PathToIndex[path]; exists {
		return
	}

	idx := len(m.Images)
	m.PathToIndex[path] = idx
	m.Images = append(m.Images, ImageRecord{
		Data:         data,
		OriginalPath: path,
		MediaType:    mediaType,
	})
}

// KindleEmbedRef returns the kindle:embed:XXXX reference for a given image path.
// The XXXX is the 1-based index as a 4-digit zero-padded hexadecimal number.
func (m *ImageMapper) KindleEmbedRef(path string) (string, bool) {
	idx, ok := m.PathToIndex[path]
	if !ok {
		return "", false
	}
	// kindle:embed uses 1-based indexing
	return fmt.Sprintf("kindle:embed:%04X", idx+1), true
}

// ImageRecordData returns the raw image data for each image record,
// ready to be written to the AZW3 file.
func (m *ImageMapper) ImageRecordData() [][]byte {
	if len(m.Images) == 0 {
		return nil
	}
	records := make([][]byte, len(m.Images))
	for i, img := range m.Images {
		records[i] = img.Data
	}
	return records
}

// RecIndexRef returns the recindex="NNNNN" attribute value for a given image
// path: a 1-based, 5-digit, zero-padded decimal index into the image
// records, per spec.md §4.2.5 (distinct from the writer's hex
// kindle:embed:XXXX form used by the teacher's AZW3 output path).
func (m *ImageMapper) RecIndexRef(path string) (string, bool) {
	idx, ok := m.PathToIndex[path]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%05d", idx+1), true
}

// recIndexRe matches recindex="NNNNN" or recindex=NNNNN attributes, quoted
// or bare, in <img> tags.
var recIndexRe = regexp.MustCompile(`recindex=["']?0*(\d+)["']?`)

// ExtractImageRecords reads the image records out of a parsed PDB's content
// records, starting at firstImageIndex (a record index, not a recindex) and
// running through lastContentRecord inclusive. Per spec.md §4.2.5, any
// record whose data isn't a recognized image format (checked by magic
// bytes) is a synthetic placeholder and is skipped.
func ExtractImageRecords(pdb *PDB, firstImageIndex uint32, lastContentRecord uint16) []ImageRecord {
	var images []ImageRecord
	for i := int(firstImageIndex); i <= int(lastContentRecord) && i < len(pdb.Data); i++ {
		data := pdb.Data[i]
		mediaType, ok := sniffImageMediaType(data)
		if !ok {
			continue
		}
		images = append(images, ImageRecord{Data: data, MediaType: mediaType})
	}
	return images
}

// sniffImageMediaType identifies an image's media type from its leading
// magic bytes, distinguishing real cover/content art from the synthetic
// filler records some MOBI writers pad the image range with.
func sniffImageMediaType(data []byte) (string, bool) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg", true
	case len(data) >= 8 && string(data[1:4]) == "PNG":
		return "image/png", true
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "image/gif", true
	default:
		return "", false
	}
}

// ParseRecIndex extracts the 1-based image index from a recindex attribute
// value, which MOBI source HTML may render quoted, bare, or zero-padded to
// any width.
func ParseRecIndex(attrValue string) (int, bool) {
	m := recIndexRe.FindStringSubmatch(`recindex="` + strings.Trim(attrValue, `"'`) + `"`)
	if len(m) < 2 {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(m[1], "%d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

// imgSrcRe matches <img src="..."> attributes in HTML.
var imgSrcRe = regexp.MustCompile(`(<img\s[^>]*?)src="([^"]*)"`)

// TransformImageReferences replaces img src attributes in HTML with
// kindle:embed:XXXX references using the provided ImageMapper.
func TransformImageReferences(html string, mapper *ImageMapper) string {
	if mapper == nil || len(mapper.Images) == 0 {
		return html
	}

	return imgSrcRe.ReplaceAllStringFunc(html, func(match string) string {
		submatch := imgSrcRe.FindStringSubmatch(match)
		if len(submatch) < 3 {
			return match
		}
		prefix := submatch[1]
		srcPath := submatch[2]

		ref, ok := mapper.KindleEmbedRef(srcPath)
		if !ok {
			return match
		}
		return prefix + `src="` + ref + `"`
	})
}
