package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/catalog"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/config"
)

var cartCmd = &cobra.Command{
	Use:   "cart <user-id>",
	Short: "Show a user's cart",
	Args:  cobra.ExactArgs(1),
	RunE:  runCart,
}

func runCart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := catalog.NewSQLite(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	cart, err := store.Checkout(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cart.IsEmpty() {
		printStatus(out, "○", "Cart is empty", color.FgYellow)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tQTY\tPRICE")
	for _, line := range cart.Items {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.2f\n", line.ProductID, line.Title, line.Quantity, line.Price)
	}
	fmt.Fprintf(w, "\t\tTOTAL\t%.2f\n", cart.TotalPrice)
	return w.Flush()
}
