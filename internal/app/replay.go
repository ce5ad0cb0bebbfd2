package app

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"nofomo/internal/service"
)

// Replay re-scores logged decisions with the configured parameters and
// reports which ones would now get a different action.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) ([]service.ReplayResult, error) {
	eng, err := a.newEngine()
	if err != nil {
		return nil, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer a.closeStore(store)

	svc := service.New(eng, store, nil, nil, a.serviceOptions(), a.Logger)
	defer a.shutdownService(svc)

	results, err := svc.Replay(ctx, opts.Limit)
	if err != nil {
		return nil, err
	}

	changed := 0
	shown := make([]service.ReplayResult, 0, len(results))
	for _, r := range results {
		if r.Changed {
			changed++
		}
		if opts.ChangedOnly && !r.Changed {
			continue
		}
		shown = append(shown, r)
	}

	if opts.JSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return results, enc.Encode(shown)
	}

	if len(shown) > 0 {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tSymbol\tSide\tLogged\tReplayed\tChanged")
		for _, r := range shown {
			mark := ""
			if r.Changed {
				mark = "*"
			}
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s (%d)\t%s (%d)\t%s\n",
				r.Entry.CreatedAt.UTC().Format(time.RFC3339),
				r.Entry.Symbol,
				r.Entry.Direction,
				r.Entry.Decision.Action,
				r.Entry.Decision.ImpulseScore,
				r.Replayed.Action,
				r.Replayed.ImpulseScore,
				mark,
			)
		}
		if err := writer.Flush(); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(a.Out, "%d of %d decisions would change\n", changed, len(results))
	return results, nil
}
