package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
)

func printProgress(out io.Writer, state models.ReconciliationState) {
	line := fmt.Sprintf("  attempt %d  status %s  %.0fs", state.Attempt, state.Status, state.ElapsedSeconds)
	if state.LastError != "" {
		line += "  last error: " + state.LastError
	}
	fmt.Fprintln(out, line)
}

func printView(out io.Writer, view reconciliation.ViewModel) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s\n", view.Headline)
	if view.Detail != "" {
		fmt.Fprintf(out, "%s\n", view.Detail)
	}
	if view.Notice != "" {
		fmt.Fprintf(out, "! %s\n", view.Notice)
	}

	if b := view.Booking; b != nil {
		fmt.Fprintf(out, "Booking:  %s\n", b.BookID)
		if len(b.Services) > 0 {
			fmt.Fprintf(out, "Services: %s\n", strings.Join(b.Services, ", "))
		}
		if b.TransactionID != "" {
			fmt.Fprintf(out, "Transaction: %s\n", b.TransactionID)
		}
		if b.Total > 0 {
			fmt.Fprintf(out, "Total:    %.2f %s\n", b.Total, b.Currency)
		}
	}

	var actions []string
	for _, a := range view.Actions {
		if a.Enabled {
			actions = append(actions, a.Label)
		}
	}
	if len(actions) > 0 {
		fmt.Fprintf(out, "Actions:  %s\n", strings.Join(actions, " | "))
	}
}
