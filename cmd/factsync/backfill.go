package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/RxDataLab/go-factsync"
	"github.com/google/subcommands"
)

type backfillCmd struct {
	cutoff string
	push   bool
}

func (*backfillCmd) Name() string     { return "backfill" }
func (*backfillCmd) Synopsis() string { return "rebuild the dataset from the full filing history" }
func (*backfillCmd) Usage() string {
	return `factsync backfill [-cutoff YYYY-MM-DD | -cutoff none] [-push]

  Fetches every reported value for the universe up to the cutoff period end,
  keeps the latest filing per reporting period and replaces both datasets.
`
}

func (c *backfillCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cutoff, "cutoff", "", "Latest period end to keep (default FACTSYNC_CUTOFF, 'none' for no limit).")
	f.BoolVar(&c.push, "push", false, "Upsert the wide dataset into the configured sink.")
}

func (c *backfillCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{client: true, sink: c.push})
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer a.close()

	var cutoff time.Time
	switch c.cutoff {
	case "":
		cutoff = a.cfg.CutoffDate()
	case "none":
	default:
		d, ok := factsync.ParseDate(c.cutoff)
		if !ok {
			fail(fmt.Errorf("invalid -cutoff %q, want YYYY-MM-DD", c.cutoff))
			return subcommands.ExitUsageError
		}
		cutoff = d
	}

	report, err := a.updater.Backfill(ctx, cutoff, c.push)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
