package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lojafacil/backend/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, closeApp := rootCmd()
	err := root.ExecuteContext(ctx)
	if closeErr := closeApp(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		stop()
		os.Exit(1)
	}
}

// rootCmd builds the command tree. The returned func releases whatever the
// executed command opened and must run even when the command failed.
func rootCmd() (*cobra.Command, func() error) {
	var (
		configPath  string
		metricsFile string
		a           *app
	)

	cmd := &cobra.Command{
		Use:           "loja",
		Short:         "Retail operations: catalog, sales, stock, cart and backups",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv("LOJA_CONFIG", configPath); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if metricsFile != "" {
				cfg.MetricsFile = metricsFile
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			a, err = newApp(cmd.Context(), cfg, cfg.NewLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides LOJA_CONFIG)")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	current := func() *app { return a }
	cmd.AddCommand(
		migrateCmd(current),
		exportCmd(current),
		restoreCmd(current),
		productsCmd(current),
		clientsCmd(current),
		salesCmd(current),
		entriesCmd(current),
		cartCmd(current),
		promoCmd(current),
		financeCmd(current),
	)
	closeApp := func() error {
		if a == nil {
			return nil
		}
		return a.Close()
	}
	return cmd, closeApp
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
