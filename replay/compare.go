package replay

import (
	"context"
	"fmt"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/market"
	"golang.org/x/sync/errgroup"
)

// Contender is one agent in a comparison.
type Contender struct {
	Name  string
	Agent agent.Agent
}

// Outcome pairs a contender with its results.
type Outcome struct {
	Name    string  `json:"name"`
	Results Results `json:"results"`
}

// Compare replays the same series through each agent concurrently, one
// Engine per agent. Agents must not share state. Outcomes come back in
// the order given; the first agent failure cancels the rest.
func Compare(ctx context.Context, series market.Series, opts Options, startBar int, contenders []Contender) ([]Outcome, error) {
	out := make([]Outcome, len(contenders))
	g, ctx := errgroup.WithContext(ctx)

	for i, c := range contenders {
		i, c := i, c
		g.Go(func() error {
			if err := agent.Prepare(c.Agent, series); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			eng, err := NewEngine(series, c.Agent, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			res, err := eng.Run(ctx, 0, startBar)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			out[i] = Outcome{Name: c.Name, Results: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
