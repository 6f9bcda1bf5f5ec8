package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type pushCmd struct{}

func (*pushCmd) Name() string     { return "push" }
func (*pushCmd) Synopsis() string { return "upsert the wide dataset into the configured sink" }
func (*pushCmd) Usage() string {
	return `factsync push

  Upserts the persisted wide dataset into the sink selected by
  FACTSYNC_SINK_DRIVER, keyed on (ticker, fiscal_year, period). Rows without
  a complete key are dropped with a warning.
`
}

func (*pushCmd) SetFlags(*flag.FlagSet) {}

func (*pushCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{sink: true})
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer a.close()

	res, err := a.updater.Push(ctx)
	if res != nil {
		fmt.Printf("Upserted %d rows in %d batches (%d dropped)\n", res.Rows, res.Batches, res.Dropped)
	}
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
