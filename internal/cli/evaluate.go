package cli

import (
	"github.com/spf13/cobra"

	"nofomo/internal/app"
)

var evaluateOpts app.EvaluateOptions

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score one trade intent offline and print the breakdown as JSON",
	Example: `  nofomo evaluate --symbol BTCUSDT --direction LONG --change24h 8.5 --fear-greed 83
  nofomo evaluate --symbol ETHUSDT --direction SHORT --sentiment BEARISH --sentiment-confidence 80 --record`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Evaluate(cmd.Context(), evaluateOpts)
		return err
	},
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evaluateOpts.Symbol, "symbol", "", "Instrument, e.g. BTCUSDT")
	f.StringVar(&evaluateOpts.Direction, "direction", "", "LONG or SHORT")
	f.StringVar(&evaluateOpts.Price, "price", "", "Last price")
	f.StringVar(&evaluateOpts.Change24h, "change24h", "", "24h change in percent")
	f.StringVar(&evaluateOpts.FearGreedIndex, "fear-greed", "", "Fear & greed index (0-100)")
	f.StringVar(&evaluateOpts.Sentiment, "sentiment", "", "BULLISH, BEARISH or NEUTRAL")
	f.StringVar(&evaluateOpts.SentimentConfidence, "sentiment-confidence", "", "Sentiment confidence in percent")
	f.BoolVar(&evaluateOpts.Record, "record", false, "Append the decision to the decision log")
}
