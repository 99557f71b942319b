package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/cassiomorais/payouts/internal/report"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type services struct {
	create interface {
		Execute(ctx context.Context, orderID string) ([]*payout.Payout, error)
	}
	run   payoutApp.PayoutRunner
	batch interface {
		Execute(ctx context.Context, cutoff time.Time) (*payoutApp.BatchSummary, error)
	}
	reconcile interface {
		Execute(ctx context.Context) (int, error)
	}
	close func()
}

type connectFunc func(ctx context.Context) (*services, error)

func newRootCmd(connect connectFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "payoutctl",
		Short:         "Seller payout operations",
		Long:          `Generate, run and reconcile seller payouts from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withServices := func(fn func(cmd *cobra.Command, args []string, s *services) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			if s.close != nil {
				defer s.close()
			}
			return fn(cmd, args, s)
		}
	}

	root.AddCommand(
		newGenerateCmd(withServices),
		newRunCmd(withServices),
		newBatchCmd(withServices),
		newReconcileCmd(withServices),
	)
	return root
}

type wrapper func(fn func(cmd *cobra.Command, args []string, s *services) error) func(*cobra.Command, []string) error

func newGenerateCmd(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <order-id>",
		Short: "Create pending payouts for a delivered order",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, args []string, s *services) error {
			payouts, err := s.create.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(payouts) == 0 {
				fmt.Fprintf(out, "order %s has no payable sellers\n", args[0])
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PAYOUT\tSELLER\tAMOUNT\tCURRENCY\tSTATUS")
			for _, p := range payouts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.SellerID, p.Amount.StringFixed(2), p.Currency, p.Status)
			}
			return tw.Flush()
		}),
	}
}

func newRunCmd(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "run <payout-id>",
		Short: "Send one pending payout to the provider",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, args []string, s *services) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid payout id %q: %w", args[0], err)
			}
			res, err := s.run.Execute(cmd.Context(), id)
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			if err != nil {
				return err
			}
			if res.Status == payout.StatusFailed {
				return fmt.Errorf("payout %s failed: %s", res.PayoutID, res.FailureReason)
			}
			return nil
		}),
	}
}

func newBatchCmd(with wrapper) *cobra.Command {
	var (
		cutoff     string
		reportPath string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run every pending payout whose order was delivered before the cutoff",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, _ []string, s *services) error {
			at := time.Now().UTC()
			if cutoff != "" {
				parsed, err := time.Parse(time.RFC3339, cutoff)
				if err != nil {
					return fmt.Errorf("invalid --cutoff %q: must be RFC 3339", cutoff)
				}
				at = parsed.UTC()
			}

			summary, err := s.batch.Execute(cmd.Context(), at)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range summary.Results {
				printResult(out, r)
			}
			fmt.Fprintf(out, "selected=%d processed=%d succeeded=%d failed=%d skipped=%d cancelled=%t\n",
				summary.Selected, summary.Processed, summary.Succeeded, summary.Failed, summary.Skipped, summary.Cancelled)

			if reportPath != "" {
				if err := report.SaveBatchReport(reportPath, summary); err != nil {
					return err
				}
				fmt.Fprintf(out, "report written to %s\n", reportPath)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&cutoff, "cutoff", "", "RFC 3339 delivery cutoff (default now)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write an XLSX report of the run to this file")
	return cmd
}

func newReconcileCmd(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Append missing ledger entries for paid payouts",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, _ []string, s *services) error {
			n, err := s.reconcile.Execute(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repaired %d ledger entries\n", n)
			return nil
		}),
	}
}

func printResult(w io.Writer, r *payoutApp.Result) {
	switch {
	case r.InProgress:
		fmt.Fprintf(w, "%s %s in progress\n", r.PayoutID, r.SellerID)
	case r.Status == payout.StatusPaid:
		fmt.Fprintf(w, "%s %s paid ref=%s\n", r.PayoutID, r.SellerID, r.ProviderRef)
	default:
		fmt.Fprintf(w, "%s %s %s reason=%q\n", r.PayoutID, r.SellerID, r.Status, r.FailureReason)
	}
}
