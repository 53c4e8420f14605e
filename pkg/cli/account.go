package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

func newLoginCommand() *Command {
	cmd := &Command{
		Name:        "login",
		Description: "Log in by email and print a token",
		Flags:       newFlagSet("login"),
	}
	email := cmd.Flags.String("email", "", "Account email (default $CHARTPAY_EMAIL)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" {
			*email = app.Config.Client.Email
		}
		if *email == "" {
			return apperrors.Validation("email is required")
		}

		client, err := app.newClient()
		if err != nil {
			return err
		}
		resp, err := client.Login(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Logged in as %s (user %s)\n", *email, resp.UserID)
		fmt.Fprintf(app.Out, "export CHARTPAY_TOKEN=%s\n", resp.Token)
		return nil
	}
	return cmd
}

func newLogoutCommand() *Command {
	cmd := &Command{
		Name:        "logout",
		Description: "Revoke the token and clear local payment state",
		Flags:       newFlagSet("logout"),
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

		if err := s.Close(ctx); err != nil {
			return err
		}
		if err := s.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(app.Out, "Logged out.")
		return nil
	}
	return cmd
}

func limitString(limit int64) string {
	if limit < 0 {
		return "unlimited"
	}
	return strconv.FormatInt(limit, 10)
}

func printPlans(out io.Writer, list []plans.Plan, current string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tPRICE\tDAILY\tMONTHLY\t")
	for _, p := range list {
		marker := ""
		if p.Name == current {
			marker = "(current)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.FormattedPrice(), limitString(p.DailyLimit), limitString(p.MonthlyLimit), marker)
	}
	w.Flush()
}

func newPlansCommand() *Command {
	cmd := &Command{
		Name:        "plans",
		Description: "List plans and their limits",
		Flags:       newFlagSet("plans"),
	}
	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		client, err := app.newClient()
		if err != nil {
			return err
		}
		list, err := client.FetchPlans(ctx)
		if err != nil {
			return err
		}
		current := ""
		if app.Config.Client.Token != "" {
			if p, err := client.FetchProfile(ctx); err == nil {
				current = p.Subscription.Plan
			}
		}
		printPlans(app.Out, list, current)
		return nil
	}
	return cmd
}

func printUpgradeHint(out io.Writer, s *userSession, d quota.Decision) {
	if !d.CanUpgrade {
		return
	}
	for _, p := range s.Catalog().Upgrades(s.Profile().Subscription.Plan) {
		fmt.Fprintf(out, "Upgrade to %s for %s: chartpay upgrade -plan %s\n", p.Name, p.FormattedPrice(), p.Name)
	}
}

func newQuotaCommand() *Command {
	cmd := &Command{
		Name:        "quota",
		Description: "Show usage against the current plan",
		Flags:       newFlagSet("quota"),
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

		profile := s.Profile()
		plan, err := s.Catalog().Get(profile.Subscription.Plan)
		if err != nil {
			return err
		}
		d, err := s.CheckQuota(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(app.Out, "Plan: %s (%s)\n", plan.Name, profile.Subscription.Status)
		if exp := profile.Subscription.ExpiresAt; exp != nil {
			fmt.Fprintf(app.Out, "Renews by: %s\n", exp.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(app.Out, "Today: %d/%s\n", profile.APIUsage.DailyAnalyses, limitString(plan.DailyLimit))
		fmt.Fprintf(app.Out, "This month: %d/%s\n", profile.APIUsage.MonthlyAnalyses, limitString(plan.MonthlyLimit))
		if !d.Allowed {
			fmt.Fprintln(app.Out, d.Message)
			printUpgradeHint(app.Out, s, d)
		}
		return nil
	}
	return cmd
}

func newAnalyzeCommand() *Command {
	cmd := &Command{
		Name:        "analyze",
		Description: "Consume one analysis if the quota allows it",
		Flags:       newFlagSet("analyze"),
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

		d, err := s.Analyze(ctx)
		if err != nil {
			return err
		}
		if !d.Allowed {
			fmt.Fprintln(app.Out, d.Message)
			printUpgradeHint(app.Out, s, d)
			return apperrors.QuotaExceeded(string(d.LimitType), d.Used, d.Limit)
		}
		usage := s.Profile().APIUsage
		fmt.Fprintf(app.Out, "Analysis recorded. Today: %d, this month: %d\n", usage.DailyAnalyses, usage.MonthlyAnalyses)
		return nil
	}
	return cmd
}
