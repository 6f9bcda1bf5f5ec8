package factsync

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchOptions configures a retrieval across a universe
type BatchOptions struct {
	Concepts    *Concepts      // Tag table, default DefaultConcepts()
	Extract     ExtractOptions // Cutoff and form filter applied to every company
	Concurrency int            // Companies fetched in parallel, default 4
}

// BatchResult contains the results of a batch retrieval
type BatchResult struct {
	Facts      []Fact         // All facts, companies in universe order
	PerEntity  map[string]int // Facts retrieved per ticker
	TotalFound int            // Companies requested
	Fetched    int            // Companies whose document was retrieved and parsed
	Errors     []error        // One per company that could not be retrieved
}

// FetchAll retrieves every company of the universe. The client's rate limiter
// is shared by all workers. A company that cannot be retrieved is recorded in
// Errors and contributes no facts; only cancellation of ctx fails the batch.
func (c *Client) FetchAll(ctx context.Context, u Universe, opts BatchOptions) (*BatchResult, error) {
	concepts := opts.Concepts
	if concepts == nil {
		concepts = DefaultConcepts()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 4
	}

	type slot struct {
		facts []Fact
		err   error
	}
	slots := make([]slot, len(u.Companies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, company := range u.Companies {
		g.Go(func() error {
			facts, err := c.retrieve(gctx, company, concepts, opts.Extract)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			slots[i] = slot{facts: facts, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BatchResult{
		PerEntity:  make(map[string]int, len(u.Companies)),
		TotalFound: len(u.Companies),
	}
	for i, s := range slots {
		if s.err != nil {
			result.Errors = append(result.Errors, s.err)
			c.log.Error("company skipped", zap.String("entity", u.Companies[i].Ticker), zap.Error(s.err))
			continue
		}
		result.Fetched++
		result.PerEntity[u.Companies[i].Ticker] = len(s.facts)
		result.Facts = append(result.Facts, s.facts...)
	}
	return result, nil
}
