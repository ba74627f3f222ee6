package cmd

import (
	"context"
	"mirrorsync/internal/daemon"
	"mirrorsync/internal/db"
	"mirrorsync/internal/logger"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the daemon and resume all active jobs",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := daemon.NewJobManager(cfg)

	started, err := manager.ResumeActive()
	if err != nil {
		return err
	}

	if started == 0 {
		logger.Log.Info("no active jobs, use 'mirrorsync job add <src> <dst>...' to add one")
	}

	srv := daemon.NewServer(manager, cfg.DaemonPort)

	logger.Log.Info("mirrorsync daemon started",
		zap.Int("jobs", started),
		zap.Int("port", cfg.DaemonPort),
		zap.String("backend", cfg.Backend))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Log.Info("shutting down")
		case <-srv.StopCh():
			logger.Log.Info("stop requested via API")
		}

		manager.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if cerr := db.Close(); cerr != nil {
		logger.Log.Warn("failed to close db", zap.Error(cerr))
	}
	return err
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
