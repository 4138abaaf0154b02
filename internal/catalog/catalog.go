// Package catalog stores products and shopping carts in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/containerd/errdefs"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/shared"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/store"
)

const (
	searchLimit          = 10
	recommendationsLimit = 5
)

var (
	// ErrProductNotFound is returned when a product id does not exist.
	ErrProductNotFound = fmt.Errorf("product not found: %w", errdefs.ErrNotFound)
	// ErrNotInCart is returned when removing a product the cart does not hold.
	ErrNotInCart = fmt.Errorf("item not found in cart: %w", errdefs.ErrNotFound)
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = fmt.Errorf("quantity must be positive: %w", errdefs.ErrInvalidArgument)
	// ErrMissingUser is returned by cart operations without a user id.
	ErrMissingUser = fmt.Errorf("no user id configured: %w", errdefs.ErrInvalidArgument)
)

// InsufficientStockError reports how many units are available.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: only %d items are available", e.Available)
}

// CartChange describes the outcome of AddToCart.
type CartChange struct {
	Action string            `json:"action"` // "added" or "updated"
	Lines  []domain.CartLine `json:"cart"`
}

// Store is the SQLite-backed catalog and cart repository.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLite opens the catalog database at path and creates its schema.
func NewSQLite(path string) (*Store, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL,
		discountPercentage REAL NOT NULL DEFAULT 0,
		rating REAL NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		brand TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		thumbnail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);

	CREATE TABLE IF NOT EXISTS cart (
		user_id TEXT NOT NULL,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		PRIMARY KEY (user_id, product_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, title, description, price, discountPercentage, rating, stock, brand, category, thumbnail`

// SearchByTitle returns up to ten products whose title contains title.
func (s *Store) SearchByTitle(ctx context.Context, title string) ([]domain.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE title LIKE ? ORDER BY id LIMIT ?`,
		"%"+title+"%", searchLimit)
}

// ByCategory returns up to ten products in category.
func (s *Store) ByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE category = ? ORDER BY id LIMIT ?`,
		category, searchLimit)
}

// ByBrand returns up to ten products of brand.
func (s *Store) ByBrand(ctx context.Context, brand string) ([]domain.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE brand = ? ORDER BY id LIMIT ?`,
		brand, searchLimit)
}

// Featured returns the first ten products.
func (s *Store) Featured(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY id LIMIT ?`, searchLimit)
}

// Recommendations returns up to five other products sharing the category
// or the brand of productID.
func (s *Store) Recommendations(ctx context.Context, productID int64) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE (category = (SELECT category FROM products WHERE id = ?)
		    OR brand = (SELECT brand FROM products WHERE id = ?))
		  AND id != ?
		ORDER BY id LIMIT ?`,
		productID, productID, productID, recommendationsLimit)
}

// Categories returns every distinct category in alphabetical order.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close category rows", "error", closeErr)
		}
	}()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Product returns one product by id.
func (s *Store) Product(ctx context.Context, id int64) (*domain.Product, error) {
	products, err := s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return &products[0], nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close product rows", "error", closeErr)
		}
	}()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.Price, &p.DiscountPercentage,
			&p.Rating, &p.Stock, &p.Brand, &p.Category, &p.Thumbnail,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// AddToCart adds quantity units of productID to the user's cart, or
// increments an existing line. Stock is checked against the requested
// quantity only.
func (s *Store) AddToCart(ctx context.Context, userID string, productID int64, quantity int) (*CartChange, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var change *CartChange
	err := s.writeTx(ctx, "add to cart", func(tx *sql.Tx) error {
		var stock int
		err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, productID).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("query stock: %w", err)
		}
		if stock < quantity {
			return &InsufficientStockError{Available: stock}
		}

		var current int
		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM cart WHERE user_id = ? AND product_id = ?`, userID, productID).Scan(&current)
		action := "updated"
		switch {
		case errors.Is(err, sql.ErrNoRows):
			action = "added"
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cart (user_id, product_id, quantity) VALUES (?, ?, ?)`, userID, productID, quantity)
		case err == nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE cart SET quantity = ? WHERE user_id = ? AND product_id = ?`, current+quantity, userID, productID)
		}
		if err != nil {
			return fmt.Errorf("write cart line: %w", err)
		}

		lines, err := cartLines(ctx, tx, userID)
		if err != nil {
			return err
		}
		change = &CartChange{Action: action, Lines: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// RemoveFromCart deletes productID from the user's cart.
func (s *Store) RemoveFromCart(ctx context.Context, userID string, productID int64) ([]domain.CartLine, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	var lines []domain.CartLine
	err := s.writeTx(ctx, "remove from cart", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cart WHERE user_id = ? AND product_id = ?`, userID, productID)
		if err != nil {
			return fmt.Errorf("delete cart line: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotInCart
		}
		lines, err = cartLines(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// Checkout returns the user's cart with product details and the total price.
func (s *Store) Checkout(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.price, c.quantity, p.thumbnail
		FROM cart c
		JOIN products p ON c.product_id = p.id
		WHERE c.user_id = ?
		ORDER BY p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query checkout: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close checkout rows", "error", closeErr)
		}
	}()

	cart := &domain.Cart{UserID: userID, Items: []domain.CartLine{}}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Title, &line.Price, &line.Quantity, &line.Thumbnail); err != nil {
			return nil, fmt.Errorf("scan checkout row: %w", err)
		}
		cart.Items = append(cart.Items, line)
		cart.TotalPrice += line.Price * float64(line.Quantity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkout: %w", err)
	}
	return cart, nil
}

// UpsertProducts inserts or replaces products and returns how many were written.
func (s *Store) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	var written int
	err := s.writeTx(ctx, "upsert products", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				price = excluded.price,
				discountPercentage = excluded.discountPercentage,
				rating = excluded.rating,
				stock = excluded.stock,
				brand = excluded.brand,
				category = excluded.category,
				thumbnail = excluded.thumbnail`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, p := range products {
			if _, err := stmt.ExecContext(ctx,
				p.ID, p.Title, p.Description, p.Price, p.DiscountPercentage,
				p.Rating, p.Stock, p.Brand, p.Category, p.Thumbnail,
			); err != nil {
				return fmt.Errorf("upsert product %d: %w", p.ID, err)
			}
			written++
		}
		return nil
	})
	return written, err
}

// CountProducts returns the number of catalog rows.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func cartLines(ctx context.Context, tx *sql.Tx, userID string) ([]domain.CartLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM cart WHERE user_id = ? ORDER BY product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// writeTx runs fn in a transaction under the write mutex, retrying SQLite
// busy errors with backoff.
func (s *Store) writeTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return shared.Retry(ctx, shared.DefaultSQLiteBackoff, shared.IsSQLiteConflictError, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
