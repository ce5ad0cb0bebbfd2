package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"nofomo/internal/engine"
	"nofomo/internal/storage"
)

// Export writes logged decisions as CSV and/or a PNG chart of impulse scores.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	limit := storage.ClampLimit(a.Config.ResolveMaxEntries(opts.Limit))

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer a.closeStore(store)

	entries, err := store.Read(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.Logger.Info().Msg("no decisions found for export")
		return nil
	}

	chronological := make([]storage.Entry, len(entries))
	for i, e := range entries {
		chronological[len(entries)-1-i] = e
	}
	a.Logger.Info().Int("exported", len(chronological)).Msg("exporting decisions")

	if opts.CSVPath != "" {
		if err := writeEntriesCSV(opts.CSVPath, chronological); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		params := a.Config.Engine
		if err := writeScoresPNG(opts.PNGPath, chronological, params.WarnThreshold, params.BlockThreshold); err != nil {
			return err
		}
	}

	return nil
}

func writeEntriesCSV(path string, entries []storage.Entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"created_at", "request_id", "symbol", "direction", "action", "impulse_score", "confidence", "cooling_seconds", "price", "change24h", "fear_greed_index", "reasons"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		record := []string{
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			e.RequestID,
			e.Symbol,
			string(e.Direction),
			string(e.Decision.Action),
			strconv.Itoa(e.Decision.ImpulseScore),
			strconv.Itoa(e.Decision.Confidence),
			strconv.Itoa(e.Decision.CoolingSeconds),
			formatNumeric(e.MarketData.Price, -1),
			formatNumeric(e.MarketData.Change24h, -1),
			fearGreedText(e.MarketData.FearGreedIndex),
			strings.Join(e.Decision.Reasons, "; "),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeScoresPNG(path string, entries []storage.Entry, warn, block int) error {
	if len(entries) < 2 {
		return errors.New("at least two decisions are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(entries))
	scores := make([]float64, len(entries))
	warnLine := make([]float64, len(entries))
	blockLine := make([]float64, len(entries))
	for i, e := range entries {
		x[i] = e.CreatedAt
		scores[i] = float64(e.Decision.ImpulseScore)
		warnLine[i] = float64(warn)
		blockLine[i] = float64(block)
	}

	scoreFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Impulse score",
			ValueFormatter: scoreFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Impulse score",
				XValues: x,
				YValues: scores,
			},
			chart.TimeSeries{
				Name:    string(engine.ActionWarn),
				XValues: x,
				YValues: warnLine,
				Style: chart.Style{
					StrokeColor:     chart.ColorOrange,
					StrokeDashArray: []float64{5, 5},
				},
			},
			chart.TimeSeries{
				Name:    string(engine.ActionBlock),
				XValues: x,
				YValues: blockLine,
				Style: chart.Style{
					StrokeColor:     chart.ColorRed,
					StrokeDashArray: []float64{5, 5},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// formatNumeric normalises a logged numeric string. Values that do not parse
// are returned unchanged; places < 0 keeps the natural precision.
func formatNumeric(raw string, places int32) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if _, ok := engine.ParseOrDefault(raw, 0); !ok {
		return raw
	}
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(raw, "%")))
	if err != nil {
		return raw
	}
	if places < 0 {
		return d.String()
	}
	return d.StringFixed(places)
}
