package extract

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

// GalleryAttrPattern matches the gallery placeholder's single-quoted
// data-mage-init attribute. Group 1 is the raw attribute value.
var GalleryAttrPattern = regexp.MustCompile(`(?i)data-gallery-role=["']gallery-placeholder["'][^>]*?data-mage-init='([^']+)'`)

var (
	jsonBlockRe   = regexp.MustCompile(`\{[^}]+\}`)
	jsonPathRe    = regexp.MustCompile(`"(/(?:static|media)/[^"]+)"`)
	jsonEscapedRe = regexp.MustCompile(`"(\\/(?:static|media)\\/[^"]+)"`)
)

// GalleryItem is one entry of the gallery widget's data array.
type GalleryItem struct {
	Img   string `json:"img"`
	Thumb string `json:"thumb"`
	Full  string `json:"full"`
}

// URLs returns the non-empty image URLs of the item.
func (g GalleryItem) URLs() []string {
	var out []string
	for _, u := range []string{g.Img, g.Thumb, g.Full} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

type galleryInit struct {
	Gallery struct {
		Data []GalleryItem `json:"data"`
	} `json:"mage/gallery/gallery"`
}

// DecodeGallery decodes a gallery data-mage-init value. HTML entities are
// resolved first.
func DecodeGallery(raw string) ([]GalleryItem, error) {
	var g galleryInit
	if err := json.Unmarshal([]byte(html.UnescapeString(raw)), &g); err != nil {
		return nil, fmt.Errorf("extract: gallery json: %w", err)
	}
	return g.Gallery.Data, nil
}

func galleryCandidates(doc string) []string {
	var out []string
	for _, m := range GalleryAttrPattern.FindAllStringSubmatch(doc, -1) {
		items, err := DecodeGallery(m[1])
		if err != nil {
			continue
		}
		for _, it := range items {
			out = append(out, it.URLs()...)
		}
	}
	return out
}

// jsonBlockCandidates scans brace-delimited blocks for quoted namespace
// paths carrying a known asset extension, in plain or \/-escaped form.
func jsonBlockCandidates(doc string) []string {
	var out []string
	for _, block := range jsonBlockRe.FindAllString(doc, -1) {
		for _, m := range jsonPathRe.FindAllStringSubmatch(block, -1) {
			if assetpath.HasAssetExtension(m[1]) {
				out = append(out, m[1])
			}
		}
		for _, m := range jsonEscapedRe.FindAllStringSubmatch(block, -1) {
			p := strings.ReplaceAll(m[1], `\/`, "/")
			if assetpath.HasAssetExtension(p) {
				out = append(out, p)
			}
		}
	}
	return out
}
