package domain

// Product is a catalog entry.
type Product struct {
	ID                 int64   `json:"id" yaml:"id"`
	Title              string  `json:"title" yaml:"title"`
	Description        string  `json:"description" yaml:"description"`
	Price              float64 `json:"price" yaml:"price"`
	DiscountPercentage float64 `json:"discountPercentage" yaml:"discount_percentage"`
	Rating             float64 `json:"rating" yaml:"rating"`
	Stock              int     `json:"stock" yaml:"stock"`
	Brand              string  `json:"brand" yaml:"brand"`
	Category           string  `json:"category" yaml:"category"`
	Thumbnail          string  `json:"thumbnail" yaml:"thumbnail"`
}

// CartLine is one product in a user's cart.
type CartLine struct {
	ProductID int64   `json:"product_id"`
	Title     string  `json:"title,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Quantity  int     `json:"quantity"`
	Thumbnail string  `json:"image,omitempty"`
}

// Cart is the checkout view of a user's cart.
type Cart struct {
	UserID     string     `json:"user_id"`
	Items      []CartLine `json:"items"`
	TotalPrice float64    `json:"total_price"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
