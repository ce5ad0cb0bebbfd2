package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"nofomo/internal/storage"
)

// Show prints the most recent decisions, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer a.closeStore(store)

	entries, err := store.Read(ctx, storage.ClampLimit(opts.Limit))
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []storage.Entry{}
		}
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(a.Out, "no decisions found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tSide\tAction\tScore\tConf\tCooling\tChange24h\tF&G\tTop reason")

	for _, e := range entries {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%d\t%ds\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Symbol,
			e.Direction,
			e.Decision.Action,
			e.Decision.ImpulseScore,
			e.Decision.Confidence,
			e.Decision.CoolingSeconds,
			orDash(formatNumeric(e.MarketData.Change24h, 2)),
			orDash(fearGreedText(e.MarketData.FearGreedIndex)),
			sanitizeInline(topReason(e)),
		)
	}

	return writer.Flush()
}

func topReason(e storage.Entry) string {
	if len(e.Decision.Reasons) == 0 {
		return ""
	}
	return e.Decision.Reasons[0]
}

func fearGreedText(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
