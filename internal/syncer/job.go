package syncer

import (
	"context"
	"mirrorsync/internal/logger"
	"mirrorsync/internal/watch"
	"time"

	"go.uber.org/zap"
)

const (
	PhasePreparing  = "preparing"
	PhaseCopying    = "copying"
	PhaseMonitoring = "monitoring"
)

type JobOptions struct {
	Backend     string
	BufferSize  int
	DeleteGuard time.Duration
	Report      Reporter
	// OnPhase is called as the job moves through its phases.
	OnPhase func(phase string)
}

func (o JobOptions) phase(p string) {
	if o.OnPhase != nil {
		o.OnPhase(p)
	}
}

// RunJob mirrors src into every destination until the source disappears or
// ctx is cancelled. Destinations are wiped first. Watches are registered
// before the initial copy so nothing created during the copy is missed.
// The caller is expected to have run Validate.
func RunJob(ctx context.Context, src string, dsts []string, opts JobOptions) error {
	src, dsts, err := AbsPaths(src, dsts)
	if err != nil {
		return err
	}

	opts.phase(PhasePreparing)
	for _, dst := range dsts {
		if err := PrepareDestination(dst); err != nil {
			return err
		}
	}

	notifier, err := watch.New(opts.Backend, opts.BufferSize)
	if err != nil {
		return err
	}

	m := NewMonitor(src, dsts, notifier, MonitorOptions{
		DeleteGuard: opts.DeleteGuard,
		Report:      opts.Report,
	})
	m.RegisterTree(src)

	opts.phase(PhaseCopying)
	if err := SyncTree(src, dsts, opts.Report); err != nil {
		logger.Log.Warn("initial sync finished with errors",
			zap.String("session", m.Session()),
			zap.String("src", src),
			zap.Error(err))
	}

	opts.phase(PhaseMonitoring)
	return m.Run(ctx)
}
