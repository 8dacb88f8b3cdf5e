// Package records enumerates catalog records (products and categories)
// in pages and feeds the image files they reference into a discovery set.
//
// Record values may be full URLs, /media/ paths, or file names relative to
// the catalog media directory ("/a/b/ab.jpg"). A failing batch stops the
// walk for that kind; a failing record is logged and skipped.
package records

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

const (
	// ProductMediaDir holds product images and their gallery entries.
	ProductMediaDir = "/media/catalog/product"
	// CategoryMediaDir holds category images and thumbnails.
	CategoryMediaDir = "/media/catalog/category"

	// NoSelection is the placeholder stored for an unset image attribute.
	NoSelection = "no_selection"

	DefaultProductBatch  = 100
	DefaultCategoryBatch = 50
)

// ProductFields are the image attributes read from product records.
var ProductFields = []string{"image", "small_image", "thumbnail", "swatch_image"}

// CategoryFields are the image attributes read from category records.
var CategoryFields = []string{"image", "thumbnail"}

// Record is one catalog entry with its image attributes.
type Record struct {
	ID     int64
	Fields map[string]string
}

// Source pages through catalog records. A short page ends the walk.
type Source interface {
	Products(ctx context.Context, offset, limit int) ([]Record, error)
	Categories(ctx context.Context, offset, limit int) ([]Record, error)
}

// GalleryLoader returns the gallery image values of one product.
type GalleryLoader interface {
	Gallery(ctx context.Context, productID int64) ([]string, error)
}

// Stats summarises one walk.
type Stats struct {
	Products   int `json:"products"`
	Categories int `json:"categories"`
	Assets     int `json:"assets"` // asset values accepted, repeats included
	Failures   int `json:"failures"`
}

// Walker walks a Source.
type Walker struct {
	src           Source
	gallery       GalleryLoader
	productBatch  int
	categoryBatch int
	siteBase      string
	logger        *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithBatchSizes overrides the product and category page sizes. Values
// below 1 keep the default.
func WithBatchSizes(products, categories int) Option {
	return func(w *Walker) {
		if products > 0 {
			w.productBatch = products
		}
		if categories > 0 {
			w.categoryBatch = categories
		}
	}
}

// WithGallery sets the gallery loader. By default the Source is used when
// it implements GalleryLoader.
func WithGallery(g GalleryLoader) Option {
	return func(w *Walker) { w.gallery = g }
}

// WithSiteBase rejects absolute record URLs on other hosts.
func WithSiteBase(base string) Option {
	return func(w *Walker) { w.siteBase = base }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) { w.logger = l }
}

// New creates a Walker over src.
func New(src Source, opts ...Option) *Walker {
	w := &Walker{
		src:           src,
		productBatch:  DefaultProductBatch,
		categoryBatch: DefaultCategoryBatch,
		logger:        slog.Default(),
	}
	if g, ok := src.(GalleryLoader); ok {
		w.gallery = g
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Walk runs WalkProducts then WalkCategories.
func (w *Walker) Walk(ctx context.Context, set *assetpath.Set) Stats {
	st := w.WalkProducts(ctx, set)
	c := w.WalkCategories(ctx, set)
	st.Categories = c.Categories
	st.Assets += c.Assets
	st.Failures += c.Failures
	w.logger.Info("records: walk done", "products", st.Products, "categories", st.Categories,
		"assets", st.Assets, "failures", st.Failures)
	return st
}

// WalkProducts adds the image attributes and gallery entries of every
// product to set.
func (w *Walker) WalkProducts(ctx context.Context, set *assetpath.Set) Stats {
	var st Stats
	w.pages(ctx, "product", w.productBatch, w.src.Products, func(r Record) {
		st.Products++
		for _, f := range ProductFields {
			st.Assets += w.add(set, ResolveValue(r.Fields[f], ProductMediaDir))
		}
		if w.gallery == nil {
			return
		}
		imgs, err := w.gallery.Gallery(ctx, r.ID)
		if err != nil {
			st.Failures++
			w.logger.Warn("records: gallery failed", "product", r.ID, "error", err)
			return
		}
		for _, v := range imgs {
			st.Assets += w.add(set, ResolveValue(v, ProductMediaDir))
		}
	})
	return st
}

// WalkCategories adds the image and thumbnail of every category to set.
func (w *Walker) WalkCategories(ctx context.Context, set *assetpath.Set) Stats {
	var st Stats
	w.pages(ctx, "category", w.categoryBatch, w.src.Categories, func(r Record) {
		st.Categories++
		for _, f := range CategoryFields {
			st.Assets += w.add(set, ResolveValue(r.Fields[f], CategoryMediaDir))
		}
	})
	return st
}

type pageFunc func(ctx context.Context, offset, limit int) ([]Record, error)

func (w *Walker) pages(ctx context.Context, kind string, limit int, next pageFunc, each func(Record)) {
	for offset := 0; ; offset += limit {
		if err := ctx.Err(); err != nil {
			w.logger.Warn("records: walk canceled", "kind", kind, "offset", offset, "error", err)
			return
		}
		batch, err := next(ctx, offset, limit)
		if err != nil {
			w.logger.Error("records: batch failed", "kind", kind, "offset", offset, "error", err)
			return
		}
		w.logger.Debug("records: batch", "kind", kind, "offset", offset, "size", len(batch))
		for _, r := range batch {
			each(r)
		}
		if len(batch) < limit {
			return
		}
	}
}

func (w *Walker) add(set *assetpath.Set, v string) int {
	if v == "" {
		return 0
	}
	if w.siteBase != "" && assetpath.ClassifyFrom(v, w.siteBase).Kind == assetpath.External {
		return 0
	}
	if set.Add(v) {
		return 1
	}
	return 0
}

// ResolveValue turns a stored image value into a URL or asset path. Empty
// values and NoSelection yield "". Full URLs and namespace paths are kept;
// anything else is taken relative to dir.
func ResolveValue(v, dir string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == NoSelection {
		return ""
	}
	l := strings.ToLower(v)
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") || strings.HasPrefix(v, "//") {
		return v
	}
	if assetpath.HasPrefix(v) {
		return v
	}
	return strings.TrimRight(dir, "/") + "/" + strings.TrimLeft(v, "/")
}
