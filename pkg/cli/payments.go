package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/expiry"
	"github.com/platinummonkey/chartpay/pkg/payments"
)

func printRequest(out io.Writer, r payments.PaymentRequest, remaining *expiry.Remaining) {
	fmt.Fprintf(out, "Payment request %s (%s plan)\n", r.ID, r.Plan)
	fmt.Fprintf(out, "  Amount:    %s\n", r.FormattedAmount())
	fmt.Fprintf(out, "  Reference: %s\n", r.Reference)
	fmt.Fprintf(out, "  Status:    %s", r.SubmissionState)
	if r.ReviewState != payments.ReviewNone {
		fmt.Fprintf(out, " / %s", r.ReviewState)
	}
	fmt.Fprintln(out)
	if r.AdminNote != "" {
		fmt.Fprintf(out, "  Note:      %s\n", r.AdminNote)
	}
	if r.SubmissionState == payments.SubmissionPending {
		b := r.BankDetails
		fmt.Fprintf(out, "Transfer %s to %s, account %s (%s), using reference %s.\n",
			r.FormattedAmount(), b.BankName, b.AccountNumber, b.AccountName, r.Reference)
		if remaining != nil && !remaining.Expired {
			fmt.Fprintf(out, "Expires in %dm %02ds. Run \"chartpay claim\" once you have paid.\n", remaining.Minutes, remaining.Seconds)
		}
	}
}

func newUpgradeCommand() *Command {
	cmd := &Command{
		Name:        "upgrade",
		Description: "Start or resume a bank-transfer upgrade",
		Flags:       newFlagSet("upgrade"),
	}
	plan := cmd.Flags.String("plan", "", "Plan to upgrade to (default: next tier)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := app.openSession(ctx)
		if err != nil {
			return err
		}
		defer s.release()

		if *plan == "" {
			upgrades := s.Catalog().Upgrades(s.Profile().Subscription.Plan)
			if len(upgrades) == 0 {
				return apperrors.Validation("already on the highest plan")
			}
			*plan = upgrades[0].Name
		}

		r, err := s.Upgrade(ctx, *plan)
		if err != nil {
			return err
		}
		rem, err := s.Remaining(ctx)
		if err != nil {
			return err
		}
		printRequest(app.Out, r, &rem)
		return nil
	}
	return cmd
}

func newClaimCommand() *Command {
	cmd := &Command{
		Name:        "claim",
		Description: "Tell the backend the transfer has been made",
		Flags:       newFlagSet("claim"),
	}
	id := cmd.Flags.String("id", "", "Payment request id (default: the active one)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := app.openSession(ctx)
		if err != nil {
			return err
		}
		defer s.release()

		target, err := s.resolveID(ctx, *id)
		if err != nil {
			return err
		}
		r, err := s.ClaimPaid(ctx, target)
		if err != nil {
			return err
		}
		printRequest(app.Out, r, nil)
		fmt.Fprintln(app.Out, "Thanks. The transfer is awaiting review; run \"chartpay refresh\" to check.")
		return nil
	}
	return cmd
}

func newCancelCommand() *Command {
	cmd := &Command{
		Name:        "cancel",
		Description: "Abandon a pending payment request",
		Flags:       newFlagSet("cancel"),
	}
	id := cmd.Flags.String("id", "", "Payment request id (default: the active one)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := app.openSession(ctx)
		if err != nil {
			return err
		}
		defer s.release()

		target, err := s.resolveID(ctx, *id)
		if err != nil {
			return err
		}
		r, err := s.Cancel(ctx, target)
		if err != nil {
			return err
		}
		printRequest(app.Out, r, nil)
		return nil
	}
	return cmd
}

func newStatusCommand() *Command {
	cmd := &Command{
		Name:        "status",
		Description: "Show the cached payment request and its countdown",
		Flags:       newFlagSet("status"),
	}
	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := app.openSession(ctx)
		if err != nil {
			return err
		}
		defer s.release()

		cur, err := s.Payments().Active(ctx)
		if err != nil {
			return err
		}
		if cur == nil {
			fmt.Fprintln(app.Out, "No payment request in progress.")
			return nil
		}
		var rem *expiry.Remaining
		if cur.SubmissionState == payments.SubmissionPending {
			r, err := s.Remaining(ctx)
			if err != nil {
				return err
			}
			rem = &r
		}
		printRequest(app.Out, *cur, rem)
		return nil
	}
	return cmd
}

func newRefreshCommand() *Command {
	cmd := &Command{
		Name:        "refresh",
		Description: "Check the backend for a review decision",
		Flags:       newFlagSet("refresh"),
	}
	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := app.openSession(ctx)
		if err != nil {
			return err
		}
		defer s.release()

		res, err := s.Refresh(ctx)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case payments.OutcomeNoop:
			fmt.Fprintln(app.Out, "No payment request in progress.")
		case payments.OutcomeStale:
			fmt.Fprintln(app.Out, "The cached payment request no longer exists and was cleared.")
		default:
			if !res.Notified && res.Request != nil {
				printRequest(app.Out, *res.Request, nil)
			}
		}
		return nil
	}
	return cmd
}

func newAckCommand() *Command {
	cmd := &Command{
		Name:        "ack",
		Description: "Dismiss a finished payment request",
		Flags:       newFlagSet("ack"),
	}
	id := cmd.Flags.String("id", "", "Payment request id (default: the cached one)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := app.openSession(ctx)
		if err != nil {
			return err
		}
		defer s.release()

		target := *id
		if target == "" {
			cur, err := s.Payments().Active(ctx)
			if err != nil {
				return err
			}
			if cur == nil {
				return apperrors.NotFound("no payment request to dismiss")
			}
			target = cur.ID
		}
		if err := s.Payments().Acknowledge(ctx, target); err != nil {
			return err
		}
		fmt.Fprintln(app.Out, "Dismissed.")
		return nil
	}
	return cmd
}
