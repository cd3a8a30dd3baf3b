// ABOUTME: Product catalog entries with bilingual names and descriptions
// ABOUTME: Upsert with price and category validation, listing by category

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/2389/shopdb/internal/query"
)

// Category is the closed set of catalog categories.
type Category string

const (
	CategorySupplements Category = "supplements"
	CategorySkincare    Category = "skincare"
	CategoryHaircare    Category = "haircare"
	CategoryWellness    Category = "wellness"
	CategoryBundles     Category = "bundles"
)

// Categories lists all valid categories.
var Categories = []Category{
	CategorySupplements,
	CategorySkincare,
	CategoryHaircare,
	CategoryWellness,
	CategoryBundles,
}

// Product is a catalog entry.
type Product struct {
	ID            string
	NameEN        string
	NameAR        string
	DescriptionEN string
	DescriptionAR string
	Price         float64
	Category      Category
	Image         string
	Benefits      []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the price and category of p.
func (p *Product) Validate() error {
	if p.NameEN == "" && p.NameAR == "" {
		return fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: negative price %v", ErrInvalidProduct, p.Price)
	}
	if !lo.Contains(Categories, p.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidProduct, p.Category)
	}
	return nil
}

const productColumns = `id, name_en, name_ar, description_en, description_ar, price, category, image, benefits, created_at, updated_at`

func scanProduct(sc scanner) (*Product, error) {
	var p Product
	var category, benefits, createdAt, updatedAt string
	if err := sc.Scan(&p.ID, &p.NameEN, &p.NameAR, &p.DescriptionEN, &p.DescriptionAR,
		&p.Price, &category, &p.Image, &benefits, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Category = Category(category)
	if benefits != "" {
		if err := json.Unmarshal([]byte(benefits), &p.Benefits); err != nil {
			return nil, fmt.Errorf("unmarshaling benefits: %w", err)
		}
	}
	var err error
	if createdAt != "" {
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
	}
	if updatedAt != "" {
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// GetProduct retrieves a product by id.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	var products []*Product
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		products, err = collect(ctx, q, scanProduct, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	p, ok := lo.First(products)
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListProducts returns products ordered by id. An empty category lists all.
func (s *Store) ListProducts(ctx context.Context, category Category) ([]*Product, error) {
	var out []*Product
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanProduct, `
			SELECT `+productColumns+` FROM products
			WHERE (? = '' OR category = ?)
			ORDER BY id`, string(category), string(category))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return out, nil
}

// SaveProduct inserts p or replaces the product with the same id. An
// empty ID is generated. Order line items keep their own snapshot.
func (s *Store) SaveProduct(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = newID("prd_")
	}
	if p.Benefits == nil {
		p.Benefits = []string{}
	}
	benefits, err := json.Marshal(p.Benefits)
	if err != nil {
		return fmt.Errorf("marshaling benefits: %w", err)
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	act, err := s.activity(s.actor(ctx), ActionProductSaved, "product", p.ID, map[string]any{"price": p.Price})
	if err != nil {
		return err
	}
	_, err = s.q.Batch(ctx,
		query.Stmt(`
			INSERT INTO products (`+productColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name_en = excluded.name_en,
				name_ar = excluded.name_ar,
				description_en = excluded.description_en,
				description_ar = excluded.description_ar,
				price = excluded.price,
				category = excluded.category,
				image = excluded.image,
				benefits = excluded.benefits,
				updated_at = excluded.updated_at`,
			p.ID, p.NameEN, p.NameAR, p.DescriptionEN, p.DescriptionAR, p.Price, string(p.Category),
			p.Image, string(benefits), formatTime(p.CreatedAt), formatTime(p.UpdatedAt)),
		act,
	)
	if err != nil {
		return fmt.Errorf("saving product: %w", err)
	}
	return nil
}

// DeleteProduct removes a product from the catalog.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	act, err := s.activity(s.actor(ctx), ActionProductDeleted, "product", id, nil)
	if err != nil {
		return err
	}
	_, err = s.q.Batch(ctx, query.Guarded(`DELETE FROM products WHERE id = ?`, id), act)
	if errors.Is(err, query.ErrNoRowsAffected) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}
