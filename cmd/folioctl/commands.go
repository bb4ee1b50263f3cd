package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/models"
	"folio/internal/service"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

var commands = []subcommands.Command{
	&refreshCmd{},
	&holdingsCmd{},
	&priceCmd{},
	&runsCmd{},
}

// open wires the refresh service the same way the server does. The returned
// func releases the database.
func open(ctx context.Context) (*service.Refresher, func(), error) {
	settings, err := config.Load(*settingsPath)
	if err != nil {
		return nil, nil, err
	}
	log := config.NewLoggerWithOutput(settings.LogLevel, settings.LogFormat, os.Stderr)
	db, err := database.Open(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	repo := database.New(db, log)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	svc, err := service.NewFromSettings(settings, repo, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := svc.Load(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, func() { db.Close() }, nil
}

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "replay the feed and revalue every asset" }
func (*refreshCmd) Usage() string {
	return `folioctl refresh

  Fetches every configured source, revalues the portfolio and stores the report.
`
}
func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeDB, err := open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeDB()

	rep, err := svc.Refresh(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error refreshing: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("run %s: %d transactions, %d issues, valued on %s\n",
		rep.RunID, len(rep.Transactions), len(rep.Issues), rep.Today.Format(models.DayLayout))
	for _, is := range rep.Issues {
		fmt.Printf("  %-14s %s: %s\n", is.Kind, is.AssetID, is.Message)
	}
	return subcommands.ExitSuccess
}

type holdingsCmd struct {
	window  string
	refresh bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "display holdings and the cash summary of a window" }
func (*holdingsCmd) Usage() string {
	return `folioctl holdings [-w <window>] [-r]

  Displays the holdings snapshot of the last refresh for a lookback window
  (All, 1Y, YTD, 1M, 1W, 1D).
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.window, "w", "All", "lookback window")
	f.BoolVar(&c.refresh, "r", false, "refresh before displaying")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeDB, err := open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeDB()

	if c.refresh {
		if _, err := svc.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error refreshing: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	rep, err := svc.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (run folioctl refresh first)\n", err)
		return subcommands.ExitFailure
	}
	snap, ok := rep.Snapshot(c.window)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown window %q\n", c.window)
		return subcommands.ExitUsageError
	}

	fmt.Printf("Holdings since %s (valued %s)\n\n", snap.Since.Format(models.DayLayout), rep.Today.Format(models.DayLayout))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "name\ttype\tquantity\tbuy\tfee\tdividend\tvalue\tgain\tgain %\tprice\tstatus\t")
	for _, group := range [][]models.HoldingsRow{snap.Assets, snap.Groups} {
		for _, h := range group {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				h.ShortName, h.Type, h.Quantity, h.Buy, h.Fee, h.Dividend,
				cell(h.Value), cell(h.Gain), cell(h.GainPercent), cell(h.Price), statusCell(h.Status))
		}
	}
	w.Flush()

	if sum, ok := rep.Summary(c.window); ok {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, l := range sum.Lines {
			fmt.Fprintf(w, "%s\t%s\t\n", strings.ReplaceAll(l.Name, "_", " "), l.Display)
		}
		w.Flush()
	}
	return subcommands.ExitSuccess
}

func cell(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func statusCell(s models.Status) string {
	if s == models.StatusOK {
		return ""
	}
	return string(s)
}

type priceCmd struct {
	date     string
	currency string
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "record a manual quote for an asset priced from the database" }
func (*priceCmd) Usage() string {
	return `folioctl price [-d <date>] [-c <currency>] <asset-id> <price>

  Records the price of an illiquid holding (price_source: stored) on a day.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", time.Now().UTC().Format(models.DayLayout), "day of the quote (YYYY-MM-DD)")
	f.StringVar(&c.currency, "c", "", "quote currency, defaults to the base currency")
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Expected <asset-id> <price>")
		return subcommands.ExitUsageError
	}
	day, err := time.Parse(models.DayLayout, c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	price, err := decimal.NewFromString(f.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing price: %v\n", err)
		return subcommands.ExitUsageError
	}

	svc, closeDB, err := open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeDB()

	if err := svc.RecordPrice(ctx, f.Arg(0), day, price, strings.ToUpper(c.currency)); err != nil {
		fmt.Fprintf(os.Stderr, "Error recording price: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("recorded %s = %s on %s\n", f.Arg(0), price, day.Format(models.DayLayout))
	return subcommands.ExitSuccess
}

type runsCmd struct {
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list recent refresh attempts" }
func (*runsCmd) Usage() string {
	return `folioctl runs [-n <count>]
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "number of runs to list")
}

func (c *runsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeDB, err := open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeDB()

	runs, err := svc.Refreshes(ctx, c.limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
		return subcommands.ExitFailure
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "id\tstarted\tstatus\ttransactions\tdropped\tmissing\terror")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Status,
			r.Transactions, r.Dropped, r.Missing, r.Error)
	}
	w.Flush()
	return subcommands.ExitSuccess
}
