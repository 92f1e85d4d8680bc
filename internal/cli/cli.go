// Package cli is the operator command line for the donation ledger:
// migrations, aggregate audits and reconciliation fault handling.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	"github.com/jmoiron/sqlx"

	"pawfund/internal/config"
	"pawfund/internal/models"
	"pawfund/internal/store"
)

// Environment provides an abstraction around the execution environment
type Environment struct {
	Stdout io.Writer
	Stderr io.Writer
}

type AggregateStore interface {
	AuditAggregates(ctx context.Context) ([]models.AggregateDrift, error)
	ResyncAggregate(ctx context.Context, id string) (models.Campaign, error)
}

type FaultStore interface {
	ListOpen(ctx context.Context) ([]models.ReconciliationFault, error)
	Resolve(ctx context.Context, id string) error
}

type MigrateCmd struct{}

func (cmd *MigrateCmd) Run(ctx context.Context, env *Environment, db *sqlx.DB) error {
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "schema up to date")
	return nil
}

type AuditCmd struct{}

func (cmd *AuditCmd) Run(ctx context.Context, env *Environment, aggregates AggregateStore) error {
	drift, err := aggregates.AuditAggregates(ctx)
	if err != nil {
		return err
	}
	if len(drift) == 0 {
		fmt.Fprintln(env.Stdout, "all campaign totals match the ledger")
		return nil
	}

	w := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAMPAIGN\tDONATED\tLEDGER\tDIFF")
	for _, d := range drift {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.CampaignID, d.DonatedAmount.StringFixed(2), d.LedgerTotal.StringFixed(2),
			d.DonatedAmount.Sub(d.LedgerTotal).StringFixed(2))
	}
	return w.Flush()
}

type FaultsCmd struct{}

func (cmd *FaultsCmd) Run(ctx context.Context, env *Environment, faults FaultStore) error {
	open, err := faults.ListOpen(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		fmt.Fprintln(env.Stdout, "no open reconciliation faults")
		return nil
	}

	w := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tCAMPAIGN\tENTRY\tDELTA\tCREATED\tDETAIL")
	for _, f := range open {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Kind, f.CampaignID, f.EntryID,
			f.Delta.StringFixed(2), f.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), f.Detail)
	}
	return w.Flush()
}

type ResolveFaultCmd struct {
	ID string `required:"" help:"id of the fault to mark resolved."`
}

func (cmd *ResolveFaultCmd) Run(ctx context.Context, env *Environment, faults FaultStore) error {
	if err := faults.Resolve(ctx, cmd.ID); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "fault %s resolved\n", cmd.ID)
	return nil
}

type ResyncCmd struct {
	Campaign string `required:"" help:"id of the campaign whose total is recomputed from its ledger."`
}

func (cmd *ResyncCmd) Run(ctx context.Context, env *Environment, aggregates AggregateStore) error {
	campaign, err := aggregates.ResyncAggregate(ctx, cmd.Campaign)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "campaign %s donated amount is now %s\n", campaign.ID, campaign.DonatedAmount.StringFixed(2))
	return nil
}

type CLI struct {
	DSN string `env:"DSN" help:"database DSN; defaults to DSN from config.env."`

	Migrate      MigrateCmd      `cmd:"" help:"Creates or updates the database schema."`
	Audit        AuditCmd        `cmd:"" help:"Lists campaigns whose donated amount differs from their confirmed donations."`
	Faults       FaultsCmd       `cmd:"" help:"Lists unresolved reconciliation faults."`
	ResolveFault ResolveFaultCmd `cmd:"" name:"resolve-fault" help:"Marks a reconciliation fault as handled."`
	Resync       ResyncCmd       `cmd:"" help:"Recomputes one campaign's donated amount from the ledger. Pause the campaign first; concurrent confirmations may be counted twice."`
}

// Run parses args, runs the chosen command and returns the exit code.
func Run(env Environment, args []string) int {
	app := CLI{}

	parser, err := kong.New(&app,
		kong.Name("ledgerctl"),
		kong.Description("donation ledger operator tools"),
		kong.UsageOnError(),
		kong.Writers(env.Stdout, env.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return 1
	}

	cntx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 1
	}

	dsn := app.DSN
	if dsn == "" {
		cfg, err := config.Load(".")
		if err != nil {
			fmt.Fprintln(env.Stderr, err)
			return 1
		}
		dsn = cfg.DSN
	}
	if dsn == "" {
		fmt.Fprintln(env.Stderr, "ledgerctl: no DSN given (use --dsn, $DSN or config.env)")
		return 1
	}

	ctx := context.Background()
	db, err := store.Open(ctx, dsn)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return 1
	}
	defer db.Close()

	cntx.BindTo(ctx, (*context.Context)(nil))
	cntx.Bind(db)
	cntx.BindTo(store.NewCampaignStore(db), (*AggregateStore)(nil))
	cntx.BindTo(store.NewFaultLog(db), (*FaultStore)(nil))

	if err := cntx.Run(&env); err != nil {
		fmt.Fprintf(env.Stderr, "ledgerctl: %s\n", err)
		return 1
	}
	return 0
}
