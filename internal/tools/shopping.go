package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/catalog"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

// Tool names exposed to the decision step.
const (
	FetchProductByTitle    = "fetch_product_by_title"
	FetchProductByCategory = "fetch_product_by_category"
	FetchProductByBrand    = "fetch_product_by_brand"
	InitializeFetch        = "initialize_fetch"
	FetchAllCategories     = "fetch_all_categories"
	FetchRecommendations   = "fetch_recommendations"
	AddToCart              = "add_to_cart"
	RemoveFromCart         = "remove_from_cart"
	ViewCheckoutInfo       = "view_checkout_info"
	GetDeliveryEstimate    = "get_delivery_estimate"
	GetPaymentOptions      = "get_payment_options"
)

const deliveryDays = 5

var paymentOptions = []string{"Credit Card", "Debit Card", "PayPal", "Gift Card"}

// Catalog is the data access the shopping tools need.
type Catalog interface {
	SearchByTitle(ctx context.Context, title string) ([]domain.Product, error)
	ByCategory(ctx context.Context, category string) ([]domain.Product, error)
	ByBrand(ctx context.Context, brand string) ([]domain.Product, error)
	Featured(ctx context.Context) ([]domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Recommendations(ctx context.Context, productID int64) ([]domain.Product, error)
	AddToCart(ctx context.Context, userID string, productID int64, quantity int) (*catalog.CartChange, error)
	RemoveFromCart(ctx context.Context, userID string, productID int64) ([]domain.CartLine, error)
	Checkout(ctx context.Context, userID string) (*domain.Cart, error)
}

// Message is the payload shape for informational results.
type Message struct {
	Message string `json:"message"`
}

// Shopping returns the shopping assistant's tools. now is used by the
// delivery estimate; nil means time.Now.
func Shopping(cat Catalog, now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}

	return []Tool{
		{
			Name:        FetchProductByTitle,
			Description: "Fetches up to 10 products whose title contains the given text.",
			Parameters:  Object(map[string]any{"title": Prop("string", "Text to search for in product titles")}, "title"),
			Run: func(ctx context.Context, call Call) (any, error) {
				title, err := call.Args.String("title")
				if err != nil {
					return nil, err
				}
				return productsOr(cat.SearchByTitle(ctx, title))("No products found with the specified title.")
			},
		},
		{
			Name:        FetchProductByCategory,
			Description: "Fetches up to 10 products in a category.",
			Parameters:  Object(map[string]any{"category": Prop("string", "Exact category name")}, "category"),
			Run: func(ctx context.Context, call Call) (any, error) {
				category, err := call.Args.String("category")
				if err != nil {
					return nil, err
				}
				return productsOr(cat.ByCategory(ctx, category))("No products found in the specified category.")
			},
		},
		{
			Name:        FetchProductByBrand,
			Description: "Fetches up to 10 products by brand.",
			Parameters:  Object(map[string]any{"brand": Prop("string", "Exact brand name")}, "brand"),
			Run: func(ctx context.Context, call Call) (any, error) {
				brand, err := call.Args.String("brand")
				if err != nil {
					return nil, err
				}
				return productsOr(cat.ByBrand(ctx, brand))("No products found for the specified brand.")
			},
		},
		{
			Name:        InitializeFetch,
			Description: "Fetches information on a limited number of available products.",
			Run: func(ctx context.Context, _ Call) (any, error) {
				products, err := cat.Featured(ctx)
				if err != nil {
					return nil, err
				}
				if products == nil {
					products = []domain.Product{}
				}
				return products, nil
			},
		},
		{
			Name:        FetchAllCategories,
			Description: "Fetches all unique product categories.",
			Run: func(ctx context.Context, _ Call) (any, error) {
				cats, err := cat.Categories(ctx)
				if err != nil {
					return nil, err
				}
				if len(cats) == 0 {
					return Message{Message: "No categories found."}, nil
				}
				return cats, nil
			},
		},
		{
			Name:        FetchRecommendations,
			Description: "Fetches up to 5 similar products sharing the category or brand of a product.",
			Parameters:  Object(map[string]any{"product_id": Prop("integer", "Product to find similar items for")}, "product_id"),
			Run: func(ctx context.Context, call Call) (any, error) {
				id, err := call.Args.Int("product_id")
				if err != nil {
					return nil, err
				}
				return productsOr(cat.Recommendations(ctx, id))("Not found similar products.")
			},
		},
		{
			Name:              AddToCart,
			Description:       "Adds an item to the user's cart after checking stock availability.",
			NeedsConfirmation: true,
			Parameters: Object(map[string]any{
				"product_id": Prop("integer", "Product to add"),
				"quantity":   Prop("integer", "Units to add, default 1"),
			}, "product_id"),
			Run: func(ctx context.Context, call Call) (any, error) {
				id, err := call.Args.Int("product_id")
				if err != nil {
					return nil, err
				}
				qty, err := call.Args.IntOr("quantity", 1)
				if err != nil {
					return nil, err
				}

				change, err := cat.AddToCart(ctx, call.UserID, id, int(qty))
				var stockErr *catalog.InsufficientStockError
				switch {
				case errors.Is(err, catalog.ErrProductNotFound):
					return Message{Message: "Product not found."}, nil
				case errors.As(err, &stockErr):
					return Message{Message: fmt.Sprintf("Insufficient stock. Only %d items are available.", stockErr.Available)}, nil
				case err != nil:
					return nil, err
				}
				return map[string]any{
					"message": fmt.Sprintf("Item has been %s in your cart.", change.Action),
					"cart":    change.Lines,
				}, nil
			},
		},
		{
			Name:              RemoveFromCart,
			Description:       "Removes an item from the user's cart.",
			NeedsConfirmation: true,
			Parameters:        Object(map[string]any{"product_id": Prop("integer", "Product to remove")}, "product_id"),
			Run: func(ctx context.Context, call Call) (any, error) {
				id, err := call.Args.Int("product_id")
				if err != nil {
					return nil, err
				}
				lines, err := cat.RemoveFromCart(ctx, call.UserID, id)
				if errors.Is(err, catalog.ErrNotInCart) {
					return Message{Message: "Item not found in your cart."}, nil
				}
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"message": "Item has been removed from your cart.",
					"cart":    lines,
				}, nil
			},
		},
		{
			Name:        ViewCheckoutInfo,
			Description: "Summarizes the items in the user's cart with the total price for checkout.",
			Run: func(ctx context.Context, call Call) (any, error) {
				cart, err := cat.Checkout(ctx, call.UserID)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"message":     "Checkout summary:",
					"total_price": cart.TotalPrice,
					"items":       cart.Items,
				}, nil
			},
		},
		{
			Name:        GetDeliveryEstimate,
			Description: "Provides a generic estimated delivery date for an order.",
			Run: func(context.Context, Call) (any, error) {
				return map[string]any{
					"message":           "Estimated delivery time:",
					"delivery_estimate": now().AddDate(0, 0, deliveryDays).Format("2006-01-02"),
				}, nil
			},
		},
		{
			Name:        GetPaymentOptions,
			Description: "Lists the available payment options.",
			Run: func(context.Context, Call) (any, error) {
				return map[string]any{
					"message":         "Available payment options:",
					"payment_options": paymentOptions,
				}, nil
			},
		},
	}
}

// productsOr returns the products, or a message payload when there are none.
func productsOr(products []domain.Product, err error) func(empty string) (any, error) {
	return func(empty string) (any, error) {
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			return Message{Message: empty}, nil
		}
		return products, nil
	}
}
