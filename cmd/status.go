package cmd

import (
	"fmt"
	"mirrorsync/internal/model"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Jobs []model.JobSnapshot `json:"jobs"`
		}

		if err := call(http.MethodGet, "/status", nil, &result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no active jobs")
			return nil
		}

		fmt.Printf("%-6s %-11s %-30s %-40s %-8s %-8s %s\n",
			"JOB", "PHASE", "SRC", "DSTS", "SYNCED", "FAILED", "LAST SYNC")

		for _, snap := range result.Jobs {
			lastSync := "-"
			if snap.LastSync != nil {
				lastSync = snap.LastSync.Format("2006-01-02 15:04:05")
			}

			uptime := time.Since(snap.StartedAt).Round(time.Second)
			fmt.Printf("%-6d %-11s %-30s %-40s %-8d %-8d %s\n",
				snap.JobID, snap.Phase, snap.Src, strings.Join(snap.Dsts, ","), snap.Synced, snap.Failed, lastSync)
			fmt.Printf("       uptime: %s\n", uptime)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
