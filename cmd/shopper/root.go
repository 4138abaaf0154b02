package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/app"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "shopper",
	Short: "Shopping assistant in your terminal",
	Long: `shopper talks to the shopping assistant from a terminal.

It can run the assistant in-process against the local catalog and checkpoint
store, or drive a running server over gRPC with --remote.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(cartCmd)
}

// openLocal loads configuration and builds the in-process assistant.
func openLocal(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// The CLI writes transcripts only when asked to.
	if os.Getenv("CONVERSATION_LOG_ENABLED") == "" {
		cfg.ConversationLog.Enabled = false
	}
	return app.Build(ctx, cfg, app.WithLogger(slog.Default()))
}

func printStatus(w io.Writer, symbol, msg string, c color.Attribute) {
	fmt.Fprintf(w, "%s %s\n", color.New(c).Sprint(symbol), msg)
}
