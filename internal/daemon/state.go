package daemon

import (
	"context"
	"mirrorsync/internal/model"
	"slices"
	"sync"
	"time"
)

type JobState struct {
	mu        sync.RWMutex
	JobID     uint
	Src       string
	Dsts      []string
	Phase     string
	StartedAt time.Time
	Synced    int
	Failed    int
	LastSync  *time.Time

	cancel context.CancelFunc
	done   chan struct{}
	// status persisted when the job ends because its context was cancelled
	cancelStatus model.JobStatus
}

func NewJobState(job model.Job, cancel context.CancelFunc) *JobState {
	return &JobState{
		JobID:        job.ID,
		Src:          job.Src,
		Dsts:         slices.Clone(job.Dsts),
		StartedAt:    job.StartedAt,
		cancel:       cancel,
		done:         make(chan struct{}),
		cancelStatus: model.JobStatusStopped,
	}
}

func (s *JobState) RecordSync(result model.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastSync = new(time.Now())
	if result.Err != nil {
		s.Failed++
	} else {
		s.Synced++
	}
}

func (s *JobState) SetPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = phase
}

// stop cancels the job and waits for its goroutine to exit. status is what
// the job is persisted as.
func (s *JobState) stop(status model.JobStatus) {
	s.mu.Lock()
	s.cancelStatus = status
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

func (s *JobState) stoppedAs() model.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelStatus
}

func (s *JobState) Mirrors(src, dst string) bool {
	return s.Src == src && slices.Contains(s.Dsts, dst)
}

func (s *JobState) Snapshot() model.JobSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.JobSnapshot{
		JobID:     s.JobID,
		Src:       s.Src,
		Dsts:      slices.Clone(s.Dsts),
		Phase:     s.Phase,
		StartedAt: s.StartedAt,
		Synced:    s.Synced,
		Failed:    s.Failed,
		LastSync:  s.LastSync,
	}
}
