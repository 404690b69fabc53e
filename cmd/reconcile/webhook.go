package main

import (
	"errors"
	"fmt"

	"github.com/poojaseva/checkout-reconciler/pkg/validator"
	"github.com/spf13/cobra"
)

func newRetryWebhookCmd(cli *cliContext) *cobra.Command {
	var paymentID string

	cmd := &cobra.Command{
		Use:   "retry-webhook",
		Short: "Ask the payment side to replay the webhook of a payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := validator.NewIdentifierValidator().Validate(paymentID)
			if err != nil {
				return fmt.Errorf("invalid --payment-id: %w", err)
			}
			if id == "" {
				return errors.New("--payment-id is required")
			}

			result, err := cli.bookingAPI.RetryWebhook(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to retry webhook: %w", err)
			}

			out := cmd.OutOrStdout()
			if result.Acknowledged {
				fmt.Fprintf(out, "Webhook retry acknowledged for payment %s\n", id)
			} else {
				fmt.Fprintf(out, "Webhook retry not acknowledged for payment %s\n", id)
			}
			if result.PaymentStatus != "" {
				fmt.Fprintf(out, "Payment status: %s\n", result.PaymentStatus)
			}
			if result.Message != "" {
				fmt.Fprintln(out, result.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&paymentID, "payment-id", "", "gateway payment id")
	_ = cmd.MarkFlagRequired("payment-id")

	return cmd
}
