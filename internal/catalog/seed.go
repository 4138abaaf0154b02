package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// SeedFile is the on-disk catalog format.
type SeedFile struct {
	Products []domain.Product `yaml:"products"`
}

// ParseSeed decodes a YAML catalog and validates each product.
func ParseSeed(data []byte) ([]domain.Product, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	seen := make(map[int64]bool, len(f.Products))
	for i, p := range f.Products {
		if p.ID <= 0 {
			return nil, fmt.Errorf("product %d: id must be positive", i)
		}
		if p.Title == "" {
			return nil, fmt.Errorf("product %d: title is required", p.ID)
		}
		if p.Price < 0 || p.Stock < 0 {
			return nil, fmt.Errorf("product %d: price and stock must not be negative", p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("product %d: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}
	return f.Products, nil
}

// LoadSeedFile reads and parses a YAML catalog file.
func LoadSeedFile(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// SeedDefaults loads the bundled catalog when the products table is empty.
func SeedDefaults(ctx context.Context, s *Store) error {
	n, err := s.CountProducts(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	products, err := ParseSeed(defaultSeed)
	if err != nil {
		return err
	}
	written, err := s.UpsertProducts(ctx, products)
	if err != nil {
		return err
	}
	slog.Info("Seeded default catalog", "products", written)
	return nil
}
