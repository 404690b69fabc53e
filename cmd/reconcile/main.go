package main

import (
	"fmt"
	"os"

	"github.com/poojaseva/checkout-reconciler/internal/config"
	"github.com/poojaseva/checkout-reconciler/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

// cliContext is shared by the subcommands
type cliContext struct {
	cfg        *config.Config
	logger     *logrus.Logger
	bookingAPI *services.BookingAPIService
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cli := &cliContext{}
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a checkout payment with its booking",
		Long: `Reconcile runs the same reconciliation as the booking result screens from a terminal.
It polls the booking API until the booking is confirmed, the payment failed, or the
attempt ceiling is reached, then offers manual verification.`,
		Version:           version,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			logger.SetLevel(logrus.WarnLevel)
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			cli.cfg = cfg
			cli.logger = logger
			cli.bookingAPI = services.NewBookingAPIService(&cfg.BookingAPI, logger)
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every lookup")

	rootCmd.AddCommand(newRunCmd(cli))
	rootCmd.AddCommand(newRetryWebhookCmd(cli))
	rootCmd.AddCommand(newAuditCmd())

	return rootCmd
}
