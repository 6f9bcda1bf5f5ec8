package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/RxDataLab/go-factsync"
	"github.com/google/subcommands"
)

type checkCmd struct {
	year   int
	metric string
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "report filing date and fiscal year coverage" }
func (*checkCmd) Usage() string {
	return `factsync check [-year YYYY] [-metric NAME]

  Prints the filing date range and fiscal year range of the long dataset,
  with the rows filed in, and belonging to fiscal year, the given year.
  -metric narrows the report to one metric, e.g. -metric Revenue.
`
}

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", time.Now().Year(), "Year to inspect.")
	f.StringVar(&c.metric, "metric", "", "Only report rows of this metric (display name).")
}

func (c *checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer a.close()

	r, err := a.updater.Check(ctx, c.year, c.metric)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	if r.Metric != "" {
		fmt.Printf("Metric: %s\n", r.Metric)
	}
	fmt.Printf("Total rows: %d\n", r.Rows)
	fmt.Printf("\nFiling Date range: %s to %s\n", day(r.FirstFiling), day(r.LastFiling))
	fmt.Printf("Rows with %d Filing Date: %d\n", r.Year, r.FiledInYear)
	printSample(r.FiledInYearSample)

	fmt.Printf("\nFiscal Year range: %s to %s\n", r.FirstFiscalYear, r.LastFiscalYear)
	fmt.Printf("Latest Fiscal Years: %v\n", r.RecentYears)
	fmt.Printf("Rows with Fiscal Year %d: %d\n", r.Year, r.FiscalYearRows)
	if r.FiscalYearRows > 0 {
		printSample(r.FiscalYearSample)
		fmt.Printf("Filing Date range: %s to %s\n", day(r.FiscalYearFiling[0]), day(r.FiscalYearFiling[1]))
	}
	return subcommands.ExitSuccess
}

func day(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format(factsync.DateLayout)
}

func printSample(facts []factsync.Fact) {
	if len(facts) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Ticker\tFiling Date\tFiscal Year\tPeriod\tForm\tMetric")
	for _, f := range facts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", f.EntityID, f.FilingDateString(), f.FiscalYear, f.PeriodType, f.Form, f.DisplayName)
	}
	_ = w.Flush()
}
