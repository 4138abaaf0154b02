package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, SeedDefaults(context.Background(), s))
	return s
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	n, err := s.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	require.NoError(t, SeedDefaults(ctx, s))
	n, err = s.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, n)
}

func TestSearchQueries(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	byTitle, err := s.SearchByTitle(ctx, "iphone")
	require.NoError(t, err)
	require.Len(t, byTitle, 2)
	assert.Equal(t, "iPhone 9", byTitle[0].Title)

	byCategory, err := s.ByCategory(ctx, "laptops")
	require.NoError(t, err)
	assert.Len(t, byCategory, 5)

	byBrand, err := s.ByBrand(ctx, "Samsung")
	require.NoError(t, err)
	assert.Len(t, byBrand, 2)

	featured, err := s.Featured(ctx)
	require.NoError(t, err)
	assert.Len(t, featured, searchLimit)

	none, err := s.ByBrand(ctx, "Nokia")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCategoriesSorted(t *testing.T) {
	s := newSeededStore(t)

	cats, err := s.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fragrances", "laptops", "skincare", "smartphones"}, cats)
}

func TestRecommendationsShareCategoryOrBrand(t *testing.T) {
	s := newSeededStore(t)

	recs, err := s.Recommendations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, recommendationsLimit)
	for _, p := range recs {
		assert.NotEqual(t, int64(1), p.ID)
		assert.True(t, p.Category == "smartphones" || p.Brand == "Apple", "unexpected recommendation %+v", p)
	}

	recs, err = s.Recommendations(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCartLifecycle(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	change, err := s.AddToCart(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "added", change.Action)
	require.Len(t, change.Lines, 1)
	assert.Equal(t, 2, change.Lines[0].Quantity)

	change, err = s.AddToCart(ctx, "u1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "updated", change.Action)
	assert.Equal(t, 3, change.Lines[0].Quantity)

	_, err = s.AddToCart(ctx, "u1", 11, 1)
	require.NoError(t, err)

	cart, err := s.Checkout(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.InDelta(t, 549*3+13, cart.TotalPrice, 0.001)

	other, err := s.Checkout(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())

	lines, err := s.RemoveFromCart(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(11), lines[0].ProductID)

	_, err = s.RemoveFromCart(ctx, "u1", 1)
	require.ErrorIs(t, err, ErrNotInCart)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestAddToCartFailures(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	_, err := s.AddToCart(ctx, "", 1, 1)
	require.ErrorIs(t, err, ErrMissingUser)

	_, err = s.AddToCart(ctx, "u1", 1, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = s.AddToCart(ctx, "u1", 999, 1)
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = s.AddToCart(ctx, "u1", 14, 1)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 0, stockErr.Available)

	cart, err := s.Checkout(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestParseSeedValidation(t *testing.T) {
	_, err := ParseSeed([]byte("products:\n  - id: 0\n    title: x\n"))
	require.Error(t, err)

	_, err = ParseSeed([]byte("products:\n  - id: 1\n    title: a\n  - id: 1\n    title: b\n"))
	require.Error(t, err)

	products, err := ParseSeed([]byte("products:\n  - id: 3\n    title: Lamp\n    price: 9.5\n    discount_percentage: 5\n"))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.InDelta(t, 5.0, products[0].DiscountPercentage, 0.0001)
}

func TestLoadSeedFileUpserts(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - id: 1\n    title: iPhone 9 Renewed\n    price: 399\n    stock: 3\n    brand: Apple\n    category: smartphones\n"), 0o600))

	products, err := LoadSeedFile(path)
	require.NoError(t, err)
	n, err := s.UpsertProducts(ctx, products)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.Product(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "iPhone 9 Renewed", p.Title)
	assert.Equal(t, 3, p.Stock)
}
