package model

import "time"

// Product represents a garment in the catalogue.
// Stock is authoritative only when the product has no size breakdown.
type Product struct {
	ID          int64         `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Slug        string        `json:"slug" db:"slug"`
	Description string        `json:"description" db:"description"`
	Price       int64         `json:"price" db:"price"`
	ImageURL    string        `json:"imageUrl" db:"image_url"`
	Stock       int           `json:"stock" db:"stock"`
	Sizes       []ProductSize `json:"sizes,omitempty"`
	Available   bool          `json:"available" db:"-"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
}

// ProductQuery selects a catalogue page.
// Size keeps products offered in that size. InStock keeps products with sellable
// stock, in Size when it is set.
type ProductQuery struct {
	Limit   int
	Offset  int
	Size    string
	InStock bool
}

// ProductSize holds the per-size stock counter of a product.
type ProductSize struct {
	ProductID int64  `json:"-" db:"product_id"`
	Size      string `json:"size" db:"size"`
	Stock     int    `json:"stock" db:"stock"`
}

// HasSizes reports whether stock is tracked per size.
func (p *Product) HasSizes() bool {
	return len(p.Sizes) > 0
}

// AvailableStock returns the authoritative stock for a size, and whether the size exists.
func (p *Product) AvailableStock(size string) (int, bool) {
	if !p.HasSizes() {
		return p.Stock, true
	}
	for _, s := range p.Sizes {
		if s.Size == size {
			return s.Stock, true
		}
	}
	return 0, false
}

// TotalStock returns the sellable units across sizes, or the product counter.
func (p *Product) TotalStock() int {
	if !p.HasSizes() {
		return p.Stock
	}
	total := 0
	for _, s := range p.Sizes {
		if s.Stock > 0 {
			total += s.Stock
		}
	}
	return total
}
