package cmd

import (
	"fmt"
	"mirrorsync/internal/model"
	"mirrorsync/internal/repository"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyFailed bool
	historyStats  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyStats {
			var stats repository.Stats
			if err := call(http.MethodGet, "/history/stats", nil, &stats); err != nil {
				return err
			}

			fmt.Printf("total: %d, success: %d, failed: %d\n", stats.Total, stats.Success, stats.Failed)
			return nil
		}

		path := fmt.Sprintf("/history?n=%d", historyN)
		if historyFailed {
			path = "/history?failed=true"
		}

		var histories []model.History
		if err := call(http.MethodGet, path, nil, &histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.Status == model.StatusFailed {
				status = "✗"
			}

			fmt.Printf("%s [%s] job %-3d %-6s %s -> %s\n",
				status,
				h.SyncedAt.Format("2006-01-02 15:04:05"),
				h.JobID,
				h.Op,
				h.SrcPath,
				h.DstPath,
			)
			if h.ErrMsg != "" {
				fmt.Printf("    %s\n", h.ErrMsg)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "show only failed operations")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show success and failure totals")
	rootCmd.AddCommand(historyCmd)
}
