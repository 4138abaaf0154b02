package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/catalog"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

func noop(context.Context, Call) (any, error) { return nil, nil }

func TestNewRegistryRejectsBadTools(t *testing.T) {
	_, err := NewRegistry(Tool{Name: "", Run: noop})
	require.Error(t, err)

	_, err = NewRegistry(Tool{Name: "a", Run: noop}, Tool{Name: "a", Run: noop})
	require.Error(t, err)

	_, err = NewRegistry(Tool{Name: "a"})
	require.Error(t, err)
}

func TestRegistryLookupAndConfirmationSet(t *testing.T) {
	r, err := NewRegistry(
		Tool{Name: "b", Run: noop, NeedsConfirmation: true},
		Tool{Name: "a", Run: noop},
		Tool{Name: "c", Run: noop, NeedsConfirmation: true},
	)
	require.NoError(t, err)

	_, ok := r.Lookup("a")
	assert.True(t, ok)
	_, ok = r.Lookup("zzz")
	assert.False(t, ok)

	assert.Equal(t, []string{"b", "c"}, r.ConfirmationRequired())

	var names []string
	for _, tool := range r.All() {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.Parameters["type"])
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func TestArgsConversions(t *testing.T) {
	args := Args{
		"f":     float64(3),
		"frac":  2.5,
		"s":     " 42 ",
		"num":   json.Number("7"),
		"text":  "  hi ",
		"blank": "   ",
	}

	n, err := args.Int("f")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = args.Int("frac")
	require.Error(t, err)

	n, err = args.Int("s")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = args.Int("num")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = args.Int("missing")
	require.Error(t, err)

	n, err = args.IntOr("missing", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err := args.String("text")
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	_, err = args.String("blank")
	require.Error(t, err)
}

func newShoppingRegistry(t *testing.T) *Registry {
	t.Helper()
	cat, err := catalog.NewSQLite(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	require.NoError(t, catalog.SeedDefaults(context.Background(), cat))

	fixed := func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	r, err := NewRegistry(Shopping(cat, fixed)...)
	require.NoError(t, err)
	return r
}

func run(t *testing.T, r *Registry, name string, call Call) any {
	t.Helper()
	tool, ok := r.Lookup(name)
	require.True(t, ok, "tool %s not registered", name)
	out, err := tool.Run(context.Background(), call)
	require.NoError(t, err)
	return out
}

func TestShoppingToolsConfirmationSet(t *testing.T) {
	r := newShoppingRegistry(t)
	assert.Equal(t, []string{AddToCart, RemoveFromCart}, r.ConfirmationRequired())
	assert.Len(t, r.All(), 11)
}

func TestShoppingSearchTools(t *testing.T) {
	r := newShoppingRegistry(t)

	out := run(t, r, FetchProductByTitle, Call{Args: Args{"title": "perfume"}})
	products, ok := out.([]domain.Product)
	require.True(t, ok)
	assert.Len(t, products, 2)

	out = run(t, r, FetchProductByBrand, Call{Args: Args{"brand": "Nokia"}})
	assert.Equal(t, Message{Message: "No products found for the specified brand."}, out)

	out = run(t, r, FetchProductByCategory, Call{Args: Args{"category": "toys"}})
	assert.Equal(t, Message{Message: "No products found in the specified category."}, out)

	out = run(t, r, FetchAllCategories, Call{})
	assert.Equal(t, []string{"fragrances", "laptops", "skincare", "smartphones"}, out)

	out = run(t, r, FetchRecommendations, Call{Args: Args{"product_id": float64(11)}})
	recs, ok := out.([]domain.Product)
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(12), recs[0].ID)

	tool, _ := r.Lookup(FetchProductByTitle)
	_, err := tool.Run(context.Background(), Call{Args: Args{}})
	require.Error(t, err)
}

func TestShoppingCartTools(t *testing.T) {
	r := newShoppingRegistry(t)
	call := func(args Args) Call { return Call{UserID: "u1", SessionID: "s1", Args: args} }

	out := run(t, r, AddToCart, call(Args{"product_id": float64(2), "quantity": float64(2)}))
	payload, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Item has been added in your cart.", payload["message"])

	out = run(t, r, AddToCart, call(Args{"product_id": float64(2)}))
	assert.Equal(t, "Item has been updated in your cart.", out.(map[string]any)["message"])

	out = run(t, r, AddToCart, call(Args{"product_id": float64(14)}))
	assert.Equal(t, Message{Message: "Insufficient stock. Only 0 items are available."}, out)

	out = run(t, r, AddToCart, call(Args{"product_id": float64(404)}))
	assert.Equal(t, Message{Message: "Product not found."}, out)

	out = run(t, r, ViewCheckoutInfo, call(nil))
	summary := out.(map[string]any)
	assert.InDelta(t, 899*3, summary["total_price"], 0.001)

	out = run(t, r, RemoveFromCart, call(Args{"product_id": float64(2)}))
	assert.Equal(t, "Item has been removed from your cart.", out.(map[string]any)["message"])

	out = run(t, r, RemoveFromCart, call(Args{"product_id": float64(2)}))
	assert.Equal(t, Message{Message: "Item not found in your cart."}, out)

	tool, _ := r.Lookup(AddToCart)
	_, err := tool.Run(context.Background(), Call{Args: Args{"product_id": float64(2)}})
	require.ErrorIs(t, err, catalog.ErrMissingUser)
}

func TestShoppingStaticTools(t *testing.T) {
	r := newShoppingRegistry(t)

	out := run(t, r, GetDeliveryEstimate, Call{})
	assert.Equal(t, "2024-03-06", out.(map[string]any)["delivery_estimate"])

	out = run(t, r, GetPaymentOptions, Call{})
	assert.Equal(t, []string{"Credit Card", "Debit Card", "PayPal", "Gift Card"}, out.(map[string]any)["payment_options"])
}
