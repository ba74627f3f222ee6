package cmd

import (
	"context"
	"errors"
	"fmt"
	"mirrorsync/internal/logger"
	"mirrorsync/internal/model"
	"mirrorsync/internal/syncer"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run [source] [destination...]",
	Short: "Mirror a source in the foreground without the daemon",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		src, dsts, err := syncer.AbsPaths(args[0], args[1:])
		if err != nil {
			return err
		}

		if err := syncer.Validate(src, dsts, nil); err != nil {
			return err
		}

		var synced, failed int
		report := syncer.Reporter(func(r model.SyncResult) {
			if r.Err != nil {
				failed++
				return
			}
			synced++
		})

		if runOnce {
			for _, dst := range dsts {
				if err := syncer.PrepareDestination(dst); err != nil {
					return err
				}
			}

			if err := syncer.SyncTree(src, dsts, report); err != nil {
				logger.Log.Warn("sync finished with errors", zap.Error(err))
			}

			fmt.Printf("done: %d synced, %d failed\n", synced, failed)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = syncer.RunJob(ctx, src, dsts, syncer.JobOptions{
			Backend:     cfg.Backend,
			BufferSize:  cfg.BufferSize,
			DeleteGuard: cfg.DeleteGuard,
			Report:      report,
			OnPhase: func(phase string) {
				logger.Log.Info("phase", zap.String("phase", phase))
			},
		})

		fmt.Printf("done: %d synced, %d failed\n", synced, failed)

		if errors.Is(err, syncer.ErrSourceGone) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "copy once and exit without monitoring")
	rootCmd.AddCommand(runCmd)
}
