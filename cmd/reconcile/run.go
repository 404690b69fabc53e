package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
	"github.com/poojaseva/checkout-reconciler/pkg/validator"
	"github.com/spf13/cobra"
)

type runOptions struct {
	paymentID       string
	cartID          string
	merchantOrderID string
	bookingID       string
	screen          string
	interactive     bool
}

func newRunCmd(cli *cliContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation and print the resulting view",
		Long: `Run starts a reconciliation for the given payment reference with the policy of
the chosen screen (confirmation, pending or failed) and prints every attempt.

When manual verification becomes available you are asked before each call.`,
		Example: `  reconcile run --cart-id CART_123
  reconcile run --payment-id 77 --screen failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReconciliation(ctx, cli, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.paymentID, "payment-id", "", "gateway payment id")
	cmd.Flags().StringVar(&opts.cartID, "cart-id", "", "cart id")
	cmd.Flags().StringVar(&opts.merchantOrderID, "merchant-order-id", "", "merchant order id")
	cmd.Flags().StringVar(&opts.bookingID, "booking-id", "", "booking id, if already known")
	cmd.Flags().StringVar(&opts.screen, "screen", string(models.ScreenPending), "screen policy: confirmation, pending or failed")
	cmd.Flags().BoolVar(&opts.interactive, "interactive", true, "offer manual verification when available")

	return cmd
}

// reference validates the flags into a PaymentReference
func (o *runOptions) reference() (models.PaymentReference, error) {
	clean, invalid := validator.NewIdentifierValidator().ValidateFields(map[string]string{
		"payment-id":        o.paymentID,
		"cart-id":           o.cartID,
		"merchant-order-id": o.merchantOrderID,
		"booking-id":        o.bookingID,
	})
	for flag, err := range invalid {
		return models.PaymentReference{}, fmt.Errorf("invalid --%s: %w", flag, err)
	}

	ref := models.PaymentReference{
		PaymentID:       clean["payment-id"],
		CartID:          clean["cart-id"],
		MerchantOrderID: clean["merchant-order-id"],
		BookingID:       clean["booking-id"],
	}
	if ref.IsEmpty() {
		return ref, errors.New("at least one of --payment-id, --cart-id, --merchant-order-id or --booking-id is required")
	}
	return ref, nil
}

func runReconciliation(ctx context.Context, cli *cliContext, opts *runOptions, out io.Writer) error {
	ref, err := opts.reference()
	if err != nil {
		return err
	}
	screen, ok := models.ParseScreen(opts.screen)
	if !ok {
		return fmt.Errorf("unknown screen %q", opts.screen)
	}
	policy, ok := cli.cfg.Reconciliation.Policies[screen]
	if !ok {
		return fmt.Errorf("no policy configured for screen %q", screen)
	}

	engine := reconciliation.NewEngine(cli.bookingAPI, policy,
		reconciliation.WithScreen(screen),
		reconciliation.WithLogger(cli.logger),
		reconciliation.WithContext(ctx),
	)
	defer engine.Cancel()

	if err := engine.Start(ref); err != nil {
		return fmt.Errorf("failed to start reconciliation: %w", err)
	}
	fmt.Fprintf(out, "Reconciling %s (screen %s, up to %d attempts)\n", ref, screen, policy.MaxAttempts)

	if err := followProgress(ctx, engine, out); err != nil {
		return err
	}

	view := engine.View()
	printView(out, view)

	if !opts.interactive {
		return nil
	}
	return offerManualVerification(ctx, engine, out)
}

// followProgress prints each attempt until automatic polling settles
func followProgress(ctx context.Context, engine *reconciliation.Engine, out io.Writer) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	lastAttempt := -1
	for {
		select {
		case <-engine.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			state := engine.Snapshot()
			if state.Attempt == lastAttempt {
				continue
			}
			lastAttempt = state.Attempt
			printProgress(out, state)
		}
	}
}

// offerManualVerification asks before every manual verification call
func offerManualVerification(ctx context.Context, engine *reconciliation.Engine, out io.Writer) error {
	for {
		state := engine.Snapshot()
		if state.Status == models.ReconciliationSuccess || !state.ManualVerifyAvailable {
			return nil
		}

		cartID := state.Reference.CartID
		if cartID == "" {
			prompt := promptui.Prompt{
				Label:    "Cart id for manual verification (empty to skip)",
				Validate: validateCartIDInput,
			}
			answer, err := prompt.Run()
			if err != nil {
				return nil
			}
			cartID, err = validator.NewIdentifierValidator().Validate(answer)
			if err != nil || cartID == "" {
				return nil
			}
		}

		confirm := promptui.Select{
			Label: fmt.Sprintf("Run manual verification for cart %s?", cartID),
			Items: []string{"Yes", "No"},
		}
		_, choice, err := confirm.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			return fmt.Errorf("prompt failed: %w", err)
		}
		if choice != "Yes" {
			return nil
		}

		booking, err := engine.ManualVerify(ctx, cartID)
		if err != nil {
			var verr *reconciliation.VerificationError
			if errors.As(err, &verr) {
				fmt.Fprintf(out, "Manual verification failed: %s\n", verr.UserMessage())
				continue
			}
			return err
		}

		fmt.Fprintf(out, "Booking %s confirmed\n", booking.BookID)
		printView(out, engine.View())
		return nil
	}
}

// validateCartIDInput applies the flag rules to a cart id typed at the prompt
func validateCartIDInput(input string) error {
	if _, err := validator.NewIdentifierValidator().Validate(input); err != nil {
		return fmt.Errorf("invalid cart id: %w", err)
	}
	return nil
}
