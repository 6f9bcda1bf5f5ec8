package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type pivotCmd struct{}

func (*pivotCmd) Name() string     { return "pivot" }
func (*pivotCmd) Synopsis() string { return "rebuild the wide dataset from the long dataset" }
func (*pivotCmd) Usage() string {
	return `factsync pivot

  Reads the persisted long dataset and rewrites the wide dataset from it.
`
}

func (*pivotCmd) SetFlags(*flag.FlagSet) {}

func (*pivotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer a.close()

	table, err := a.updater.Pivot(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Wide dataset: %d rows, %d metrics\n", len(table.Rows), len(table.Columns))
	return subcommands.ExitSuccess
}
