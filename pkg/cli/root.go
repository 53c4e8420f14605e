package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/platinummonkey/chartpay/pkg/config"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

// App carries what every command needs.
type App struct {
	Config *config.Config
	Out    io.Writer
	Logger *observability.Logger
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, app *App, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "chartpay",
		Description: "Chartpay - plans, usage and bank-transfer upgrades",
		Subcommands: make(map[string]*Command),
		Flags:       newFlagSet("chartpay"),
	}

	for _, cmd := range []*Command{
		newLoginCommand(),
		newLogoutCommand(),
		newPlansCommand(),
		newQuotaCommand(),
		newAnalyzeCommand(),
		newUpgradeCommand(),
		newClaimCommand(),
		newCancelCommand(),
		newStatusCommand(),
		newRefreshCommand(),
		newAckCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0].
func (c *Command) Execute(ctx context.Context, app *App, args []string) error {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Logger == nil {
		app.Logger = observability.NewNopLogger()
	}
	if len(args) == 0 {
		return c.usage(app.Out)
	}

	// Check for help flag
	if a := strings.ToLower(args[0]); a == "-h" || a == "--help" || a == "help" {
		return c.usage(app.Out)
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		subcmd.Flags.SetOutput(app.Out)
		return subcmd.Run(ctx, app, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
