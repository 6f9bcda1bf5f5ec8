package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
)

type updateCmd struct {
	push bool
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "fetch new filings and merge them into the dataset" }
func (*updateCmd) Usage() string {
	return `factsync update [-push]

  Loads the persisted long dataset, fetches company facts for the universe,
  keeps only facts that are new, merges them so every reporting period keeps
  its latest filing, then rebuilds the wide dataset. With -push the wide
  dataset is also upserted into the configured sink.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.push, "push", false, "Upsert the wide dataset into the configured sink.")
}

func (c *updateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{client: true, sink: c.push})
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer a.close()

	report, err := a.updater.Run(ctx, c.push)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
