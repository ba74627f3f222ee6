package daemon

import (
	"context"
	"errors"
	"fmt"
	"mirrorsync/internal/config"
	"mirrorsync/internal/logger"
	"mirrorsync/internal/metrics"
	"mirrorsync/internal/model"
	"mirrorsync/internal/repository"
	"mirrorsync/internal/syncer"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrJobNotFound = errors.New("job not found")

// registryFunc adapts a function to syncer.Registry.
type registryFunc func(src, dst string) bool

func (f registryFunc) IsActive(src, dst string) bool { return f(src, dst) }

// JobManager owns every running mirror job. Adding, ending and looking up
// jobs is serialized by mu; each job runs in its own goroutine.
type JobManager struct {
	mu      sync.RWMutex
	jobs    map[uint]*JobState
	cfg     *config.Config
	repo    *repository.HistoryRepository
	jobRepo *repository.JobRepository
	wg      sync.WaitGroup
}

func NewJobManager(cfg *config.Config) *JobManager {
	return &JobManager{
		jobs:    make(map[uint]*JobState),
		cfg:     cfg,
		repo:    repository.NewHistoryRepository(),
		jobRepo: repository.NewJobRepository(),
	}
}

// IsActive reports whether a running job mirrors src into dst.
func (m *JobManager) IsActive(src, dst string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isActiveLocked(src, dst)
}

func (m *JobManager) isActiveLocked(src, dst string) bool {
	for _, state := range m.jobs {
		if state.Mirrors(src, dst) {
			return true
		}
	}
	return false
}

func (m *JobManager) isDestinationLocked(dst string) bool {
	for _, state := range m.jobs {
		if slices.Contains(state.Dsts, dst) {
			return true
		}
	}
	return false
}

// AddJob validates a submission, persists it and starts mirroring. Nothing
// on disk is touched when validation fails.
func (m *JobManager) AddJob(src string, dsts []string) (model.Job, error) {
	src, dsts, err := syncer.AbsPaths(src, dsts)
	if err != nil {
		return model.Job{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := syncer.Validate(src, dsts, registryFunc(m.isActiveLocked)); err != nil {
		return model.Job{}, err
	}

	job, err := m.jobRepo.Add(src, dsts)
	if err != nil {
		return model.Job{}, fmt.Errorf("failed to save job: %w", err)
	}

	m.startLocked(job)
	return job, nil
}

// ResumeActive restarts every job persisted as active. Destinations are
// prepared and copied again, so their start time is refreshed.
func (m *JobManager) ResumeActive() (int, error) {
	jobs, err := m.jobRepo.GetActive()
	if err != nil {
		return 0, fmt.Errorf("failed to load jobs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	started := 0
	for _, job := range jobs {
		if _, running := m.jobs[job.ID]; running {
			continue
		}

		if err := syncer.Validate(job.Src, job.Dsts, registryFunc(m.isActiveLocked)); err != nil {
			logger.Log.Warn("failed to resume job",
				zap.Uint("id", job.ID),
				zap.Error(err))
			_ = m.jobRepo.UpdateStatus(job.ID, model.JobStatusFailed)
			continue
		}

		job.StartedAt = time.Now()
		if err := m.jobRepo.Touch(job.ID, job.StartedAt); err != nil {
			logger.Log.Warn("failed to update job start time",
				zap.Uint("id", job.ID),
				zap.Error(err))
		}

		m.startLocked(job)
		started++
	}

	return started, nil
}

func (m *JobManager) startLocked(job model.Job) {
	ctx, cancel := context.WithCancel(context.Background())
	state := NewJobState(job, cancel)

	m.jobs[job.ID] = state
	metrics.JobsActive.Inc()

	m.wg.Add(1)
	go m.run(ctx, state)

	logger.Log.Info("job started",
		zap.Uint("id", job.ID),
		zap.String("src", job.Src),
		zap.Strings("dsts", job.Dsts))
}

func (m *JobManager) run(ctx context.Context, state *JobState) {
	defer m.wg.Done()
	defer close(state.done)

	err := syncer.RunJob(ctx, state.Src, state.Dsts, syncer.JobOptions{
		Backend:     m.cfg.Backend,
		BufferSize:  m.cfg.BufferSize,
		DeleteGuard: m.cfg.DeleteGuard,
		Report: func(result model.SyncResult) {
			m.record(state, result)
		},
		OnPhase: state.SetPhase,
	})

	var status model.JobStatus
	switch {
	case errors.Is(err, syncer.ErrSourceGone):
		status = model.JobStatusFinished
	case errors.Is(err, context.Canceled):
		status = state.stoppedAs()
	default:
		status = model.JobStatusFailed
	}

	m.mu.Lock()
	delete(m.jobs, state.JobID)
	m.mu.Unlock()
	metrics.JobsActive.Dec()

	if err := m.jobRepo.UpdateStatus(state.JobID, status); err != nil {
		logger.Log.Warn("failed to update job status",
			zap.Uint("id", state.JobID),
			zap.Error(err))
	}

	if status == model.JobStatusFailed {
		logger.Log.Error("job failed",
			zap.Uint("id", state.JobID),
			zap.Error(err))
		return
	}

	logger.Log.Info("job stopped",
		zap.Uint("id", state.JobID),
		zap.String("status", string(status)))
}

func (m *JobManager) record(state *JobState, result model.SyncResult) {
	state.RecordSync(result)

	if !m.cfg.RecordHistory {
		return
	}

	if err := m.repo.Save(state.JobID, result); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

// StopJob ends a running job and waits for it to exit.
func (m *JobManager) StopJob(id uint) error {
	m.mu.RLock()
	state, exists := m.jobs[id]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %d: %w", id, ErrJobNotFound)
	}

	state.stop(model.JobStatusStopped)
	return nil
}

// RemoveJob stops the job if it is running and deletes it.
func (m *JobManager) RemoveJob(id uint) error {
	if err := m.StopJob(id); err != nil && !errors.Is(err, ErrJobNotFound) {
		return err
	}

	if err := m.jobRepo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}

	return nil
}

// EndByPaths stops every running job for src that mirrors into one of dsts,
// or every job for src when dsts is empty. It returns the ended job ids.
func (m *JobManager) EndByPaths(src string, dsts []string) ([]uint, error) {
	src, dsts, err := syncer.AbsPaths(src, dsts)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var matched []*JobState
	for _, state := range m.jobs {
		if state.Src != src {
			continue
		}
		if len(dsts) == 0 || slices.ContainsFunc(dsts, func(d string) bool {
			return slices.Contains(state.Dsts, d)
		}) {
			matched = append(matched, state)
		}
	}
	m.mu.RUnlock()

	if len(matched) == 0 {
		return nil, fmt.Errorf("%s: %w", src, ErrJobNotFound)
	}

	ids := make([]uint, 0, len(matched))
	for _, state := range matched {
		state.stop(model.JobStatusStopped)
		ids = append(ids, state.JobID)
	}
	slices.Sort(ids)

	return ids, nil
}

// StopAll stops every job for daemon shutdown. The jobs stay active in the
// database so the next daemon start resumes them.
func (m *JobManager) StopAll() {
	m.mu.RLock()
	states := make([]*JobState, 0, len(m.jobs))
	for _, state := range m.jobs {
		states = append(states, state)
	}
	m.mu.RUnlock()

	for _, state := range states {
		state.stop(model.JobStatusActive)
	}

	m.wg.Wait()
}

func (m *JobManager) Snapshots() []model.JobSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]model.JobSnapshot, 0, len(m.jobs))
	for _, state := range m.jobs {
		snaps = append(snaps, state.Snapshot())
	}

	slices.SortFunc(snaps, func(a, b model.JobSnapshot) int {
		return int(a.JobID) - int(b.JobID)
	})

	return snaps
}

type RestoreResult struct {
	Stats  syncer.ReconcileStats `json:"stats"`
	Cutoff *time.Time            `json:"cutoff,omitempty"`
}

// Restore reconciles target from backup. Without an explicit since, the
// cutoff is the start time of the latest job that mirrored into backup.
func (m *JobManager) Restore(target, backup string, since time.Time) (RestoreResult, error) {
	target, backups, err := syncer.AbsPaths(target, []string{backup})
	if err != nil {
		return RestoreResult{}, err
	}
	backup = backups[0]

	m.mu.RLock()
	busy := m.isDestinationLocked(backup) || m.isDestinationLocked(target)
	m.mu.RUnlock()
	if busy {
		return RestoreResult{}, &syncer.ValidationError{Path: backup, Err: syncer.ErrJobActive}
	}

	var jobID uint
	job, found, err := m.jobRepo.LatestForDst(backup)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("failed to look up backup job: %w", err)
	}
	if found {
		jobID = job.ID
		if since.IsZero() {
			since = job.StartedAt
		}
	}

	var report syncer.Reporter
	if m.cfg.RecordHistory {
		report = func(result model.SyncResult) {
			if err := m.repo.Save(jobID, result); err != nil {
				logger.Log.Warn("failed to save history", zap.Error(err))
			}
		}
	}

	stats, err := syncer.ReconcileWithReport(target, backup, since, report)

	res := RestoreResult{Stats: stats}
	if !since.IsZero() {
		res.Cutoff = &since
	}

	return res, err
}
