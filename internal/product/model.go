package product

import "time"

// variantLabelSize is the only variant dimension the catalog carries.
const variantLabelSize = "size"

type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PriceOld    float64   `json:"price_old"`
	PriceNew    *float64  `json:"price_new"`
	ImageURL    string    `json:"image_url"`
	Images      []string  `json:"images"`
	Unit        string    `json:"unit"`
	CategoryID  *string   `json:"category_id"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Variant is one sellable size of a product with its own price.
type Variant struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Label     string  `json:"label"`
	Value     string  `json:"value"`
	Price     float64 `json:"price"`
}

// EffectivePrice is what an order line pays: the discounted price when
// set, the regular price otherwise.
func (p Product) EffectivePrice() float64 {
	if p.PriceNew != nil {
		return *p.PriceNew
	}
	return p.PriceOld
}

type ProductInput struct {
	Title       string
	Description string
	PriceOld    float64
	PriceNew    *float64
	ImageURL    string
	Images      []string
	Unit        string
	CategoryID  *string
	Variants    []VariantInput
}

type VariantInput struct {
	Value string
	Price float64
}

// VariantPatch with an empty ID creates a new variant; otherwise it
// updates the existing one. Live variants absent from a patch set are
// soft-deleted.
type VariantPatch struct {
	ID    string
	Value string
	Price float64
}

type ListQuery struct {
	Q          string
	CategoryID string
	Page       int
	PageSize   int
}

type Page struct {
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Results  []Product `json:"results"`
}
