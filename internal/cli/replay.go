package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nofomo/internal/app"
	"nofomo/internal/storage"
)

var replayOpts app.ReplayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-score logged decisions with the current engine parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayOpts.Limit < storage.MinReadLimit || replayOpts.Limit > storage.MaxReadLimit {
			return fmt.Errorf("--limit must be between %d and %d", storage.MinReadLimit, storage.MaxReadLimit)
		}
		_, err := getApp().Replay(cmd.Context(), replayOpts)
		return err
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayOpts.Limit, "limit", storage.DefaultReadLimit, "Most recent decisions to replay")
	replayCmd.Flags().BoolVar(&replayOpts.ChangedOnly, "changed-only", false, "Only list decisions whose action would change")
	replayCmd.Flags().BoolVar(&replayOpts.JSON, "json", false, "Print results as JSON")
}
