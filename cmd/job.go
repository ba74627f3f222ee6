package cmd

import (
	"fmt"
	"mirrorsync/internal/model"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage jobs",
}

type jobRequest struct {
	Src  string   `json:"src"`
	Dsts []string `json:"dsts"`
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Jobs    []model.Job                `json:"jobs"`
			Running map[uint]model.JobSnapshot `json:"running"`
		}

		if err := call(http.MethodGet, "/jobs", nil, &result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no jobs configured")
			return nil
		}

		fmt.Printf("%-4s %-9s %-11s %-30s %-40s %s\n", "ID", "STATUS", "PHASE", "SRC", "DSTS", "SYNCED/FAILED")
		for _, j := range result.Jobs {
			phase := "-"
			synced, failed := 0, 0
			if r, ok := result.Running[j.ID]; ok {
				phase = r.Phase
				synced = r.Synced
				failed = r.Failed
			}
			fmt.Printf("%-4d %-9s %-11s %-30s %-40s %d/%d\n",
				j.ID, j.Status, phase, j.Src, strings.Join(j.Dsts, ","), synced, failed)
		}

		return nil
	},
}

var jobAddCmd = &cobra.Command{
	Use:   "add [src] [dst...]",
	Short: "Start mirroring src into every dst",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var job model.Job
		if err := call(http.MethodPost, "/jobs", jobRequest{Src: args[0], Dsts: args[1:]}, &job); err != nil {
			return err
		}

		fmt.Printf("job added: id=%d src=%s dsts=%s\n", job.ID, job.Src, strings.Join(job.Dsts, ","))
		return nil
	},
}

var jobEndCmd = &cobra.Command{
	Use:   "end [src] [dst...]",
	Short: "Stop mirroring src, into the given dsts only if any are named",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Ended []uint `json:"ended"`
		}
		if err := call(http.MethodPost, "/jobs/end", jobRequest{Src: args[0], Dsts: args[1:]}, &result); err != nil {
			return err
		}

		for _, id := range result.Ended {
			fmt.Printf("job %d ended\n", id)
		}
		return nil
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Stop and delete a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/jobs/"+args[0], nil, nil); err != nil {
			return err
		}

		fmt.Printf("job %s removed\n", args[0])
		return nil
	},
}

func init() {
	jobCmd.AddCommand(jobListCmd, jobAddCmd, jobEndCmd, jobRemoveCmd)
	rootCmd.AddCommand(jobCmd)
}
