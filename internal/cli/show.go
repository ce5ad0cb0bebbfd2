package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nofomo/internal/app"
	"nofomo/internal/storage"
)

var (
	showLimit int
	showJSON  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent decisions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit < storage.MinReadLimit || showLimit > storage.MaxReadLimit {
			return fmt.Errorf("--limit must be between %d and %d", storage.MinReadLimit, storage.MaxReadLimit)
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			JSON:  showJSON,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of decisions to display")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print entries as JSON")
}
