package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datapipes/nyc-taxi-ingest/internal/enumerate"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the expected monthly file names without downloading",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := enumerate.ParseMonth(cfg.Source.StartDate)
		if err != nil {
			return err
		}
		end, err := enumerate.ParseMonth(cfg.Source.EndDate)
		if err != nil {
			return err
		}
		for _, ref := range enumerate.FileRefs(cfg.Source.TaxiType, start, end) {
			fmt.Println(ref.Name)
		}
		return nil
	},
}
