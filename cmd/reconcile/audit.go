package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/poojaseva/checkout-reconciler/internal/config"
	"github.com/poojaseva/checkout-reconciler/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newAuditCmd groups maintenance of the reconciliation audit trail. It only
// needs a database, so it skips the full configuration load.
func newAuditCmd() *cobra.Command {
	var (
		dbURL string
		repo  *database.ReconciliationAuditRepository
		db    *database.PostgresDB
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect or prune the reconciliation audit trail",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if dbURL == "" {
				dbURL = os.Getenv("DATABASE_URL")
			}
			if dbURL == "" {
				return errors.New("DATABASE_URL is not set and --database-url was not provided")
			}

			var err error
			db, err = database.NewConnection(cmd.Context(), config.DatabaseConfig{
				URL:                dbURL,
				MaxConnections:     2,
				MaxIdleConnections: 1,
			})
			if err != nil {
				return err
			}

			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())
			repo = database.NewReconciliationAuditRepository(db, logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				db.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit entries older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			deleted, err := repo.DeleteOlderThan(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries older than %s\n", deleted, olderThan)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "retention period")

	show := &cobra.Command{
		Use:   "show [reconciliation-id]",
		Short: "Print the audit trail of one reconciliation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid reconciliation id: %w", err)
			}
			audits, err := repo.ListByReconciliation(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(audits) == 0 {
				fmt.Fprintln(out, "No audit entries")
				return nil
			}
			for _, a := range audits {
				line := fmt.Sprintf("%s  %-30s %-8s attempt %d", a.CreatedAt.Format(time.RFC3339), a.EventType, a.EventSource, a.Attempt)
				if a.FromStatus != nil && a.ToStatus != nil {
					line += fmt.Sprintf("  %s -> %s", *a.FromStatus, *a.ToStatus)
				}
				if a.ErrorMessage != nil {
					line += "  error: " + *a.ErrorMessage
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.AddCommand(prune, show)
	return cmd
}
