package catalog

// Product is one entry in the shop catalog.
type Product struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
	Category    string  `json:"category"`
	IsNew       bool    `json:"isNew"`
	Stock       int     `json:"stock"`
}

// Catalog is a read-only product listing.
type Catalog struct {
	products []Product
}

// Default returns the shop's built-in catalog.
func Default() *Catalog {
	return &Catalog{products: []Product{
		{
			ID:          1,
			Name:        "Midnight Oud",
			Description: "A rich and mysterious blend of oud, amber, and spices.",
			Price:       4500,
			Category:    "woody",
			Stock:       5,
		},
		{
			ID:          2,
			Name:        "Ocean Breeze",
			Description: "Fresh aquatic notes with hints of citrus and sea salt.",
			Price:       3800,
			Category:    "fresh",
			Stock:       8,
		},
		{
			ID:          3,
			Name:        "Velvet Rose",
			Description: "Damask rose layered over soft vanilla and musk.",
			Price:       5200,
			Category:    "floral",
			IsNew:       true,
			Stock:       3,
		},
		{
			ID:          4,
			Name:        "Citrus Grove",
			Description: "Bright bergamot and neroli with a green finish.",
			Price:       3200,
			Category:    "citrus",
			IsNew:       true,
			Stock:       12,
		},
	}}
}

// All returns every product.
func (c *Catalog) All() []Product {
	return c.products
}

// Find returns the product with the given id, or (Product{}, false).
func (c *Catalog) Find(id int) (Product, bool) {
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
