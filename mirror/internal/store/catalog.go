package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hazyhaar/cdnmirror/dbopen"
	"github.com/hazyhaar/cdnmirror/records"
)

var (
	_ records.Source        = (*Store)(nil)
	_ records.GalleryLoader = (*Store)(nil)
)

// Product is a catalog product as imported.
type Product struct {
	ID          int64    `json:"id"`
	SKU         string   `json:"sku,omitempty"`
	Image       string   `json:"image,omitempty"`
	SmallImage  string   `json:"small_image,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	SwatchImage string   `json:"swatch_image,omitempty"`
	Gallery     []string `json:"gallery,omitempty"`
}

// Category is a catalog category as imported.
type Category struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	Image     string `json:"image,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Catalog is the import document.
type Catalog struct {
	Products   []Product  `json:"products"`
	Categories []Category `json:"categories"`
}

// ImportStats counts imported rows.
type ImportStats struct {
	Products   int `json:"products"`
	Gallery    int `json:"gallery"`
	Categories int `json:"categories"`
}

// ImportCatalog decodes a Catalog from r and upserts it. A product's
// gallery is replaced as a whole.
func (s *Store) ImportCatalog(ctx context.Context, r io.Reader) (ImportStats, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return ImportStats{}, fmt.Errorf("store: decode catalog: %w", err)
	}
	return s.UpsertCatalog(ctx, &c)
}

// UpsertCatalog writes c in one transaction.
func (s *Store) UpsertCatalog(ctx context.Context, c *Catalog) (ImportStats, error) {
	var st ImportStats
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		st = ImportStats{}
		for _, p := range c.Products {
			if p.ID <= 0 {
				return fmt.Errorf("store: product id %d: must be positive", p.ID)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO catalog_products (id, sku, image, small_image, thumbnail, swatch_image)
				VALUES (?,?,?,?,?,?)
				ON CONFLICT(id) DO UPDATE SET sku=excluded.sku, image=excluded.image,
					small_image=excluded.small_image, thumbnail=excluded.thumbnail,
					swatch_image=excluded.swatch_image`,
				p.ID, p.SKU, p.Image, p.SmallImage, p.Thumbnail, p.SwatchImage,
			)
			if err != nil {
				return fmt.Errorf("store: upsert product %d: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM catalog_product_gallery WHERE product_id = ?`, p.ID); err != nil {
				return fmt.Errorf("store: clear gallery %d: %w", p.ID, err)
			}
			for i, v := range p.Gallery {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO catalog_product_gallery (product_id, position, value) VALUES (?,?,?)`,
					p.ID, i, v); err != nil {
					return fmt.Errorf("store: insert gallery %d: %w", p.ID, err)
				}
				st.Gallery++
			}
			st.Products++
		}
		for _, cat := range c.Categories {
			if cat.ID <= 0 {
				return fmt.Errorf("store: category id %d: must be positive", cat.ID)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO catalog_categories (id, name, image, thumbnail) VALUES (?,?,?,?)
				ON CONFLICT(id) DO UPDATE SET name=excluded.name, image=excluded.image,
					thumbnail=excluded.thumbnail`,
				cat.ID, cat.Name, cat.Image, cat.Thumbnail,
			)
			if err != nil {
				return fmt.Errorf("store: upsert category %d: %w", cat.ID, err)
			}
			st.Categories++
		}
		return nil
	})
	return st, err
}

// Products implements records.Source. Rows come in id order so offsets
// are stable across pages.
func (s *Store) Products(ctx context.Context, offset, limit int) ([]records.Record, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, image, small_image, thumbnail, swatch_image
		FROM catalog_products ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: products: %w", err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		var id int64
		var image, small, thumb, swatch string
		if err := rows.Scan(&id, &image, &small, &thumb, &swatch); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		out = append(out, records.Record{ID: id, Fields: fields(
			"image", image, "small_image", small, "thumbnail", thumb, "swatch_image", swatch,
		)})
	}
	return out, rows.Err()
}

// Categories implements records.Source.
func (s *Store) Categories(ctx context.Context, offset, limit int) ([]records.Record, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, image, thumbnail FROM catalog_categories
		ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: categories: %w", err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		var id int64
		var image, thumb string
		if err := rows.Scan(&id, &image, &thumb); err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}
		out = append(out, records.Record{ID: id, Fields: fields("image", image, "thumbnail", thumb)})
	}
	return out, rows.Err()
}

// Gallery implements records.GalleryLoader.
func (s *Store) Gallery(ctx context.Context, productID int64) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT value FROM catalog_product_gallery
		WHERE product_id = ? ORDER BY position`, productID)
	if err != nil {
		return nil, fmt.Errorf("store: gallery: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan gallery: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// fields builds a Fields map from name/value pairs, dropping empty values.
func fields(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			m[kv[i]] = kv[i+1]
		}
	}
	return m
}
