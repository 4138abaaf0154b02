package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/catalog"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file.yaml]",
	Short: "Load products into the catalog",
	Long: `Load products into the catalog database.

With no argument the bundled catalog is loaded when the catalog is empty.
With a YAML file every product in it is inserted or updated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := catalog.NewSQLite(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if len(args) == 0 {
		if err := catalog.SeedDefaults(ctx, store); err != nil {
			return err
		}
	} else {
		products, err := catalog.LoadSeedFile(args[0])
		if err != nil {
			return err
		}
		n, err := store.UpsertProducts(ctx, products)
		if err != nil {
			return err
		}
		printStatus(out, "✓", fmt.Sprintf("Loaded %d products from %s", n, args[0]), color.FgGreen)
	}

	total, err := store.CountProducts(ctx)
	if err != nil {
		return err
	}
	printStatus(out, "✓", fmt.Sprintf("Catalog has %d products", total), color.FgGreen)
	return nil
}
