package cmd

import (
	"fmt"
	"mirrorsync/internal/daemon"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var restoreSince string

var restoreCmd = &cobra.Command{
	Use:   "restore [target] [backup]",
	Short: "Restore target from a backup destination",
	Long: `Restore makes target match backup. Files changed in backup after the cutoff
overwrite target, missing entries are created and entries absent from backup
are removed. The cutoff defaults to when the backup was last prepared.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{"target": args[0], "backup": args[1]}
		if restoreSince != "" {
			since, err := time.Parse(time.RFC3339, restoreSince)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			req["since"] = since
		}

		var result struct {
			daemon.RestoreResult
			Error string `json:"error"`
		}
		if err := call(http.MethodPost, "/restore", req, &result); err != nil {
			return err
		}

		cutoff := "none"
		if result.Cutoff != nil {
			cutoff = result.Cutoff.Format(time.RFC3339)
		}

		fmt.Printf("restored: %d copied, %d created, %d removed (cutoff %s)\n",
			result.Stats.Copied, result.Stats.Created, result.Stats.Removed, cutoff)

		if result.Error != "" {
			return fmt.Errorf("some entries failed: %s", result.Error)
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreSince, "since", "", "cutoff time (RFC3339)")
	rootCmd.AddCommand(restoreCmd)
}
