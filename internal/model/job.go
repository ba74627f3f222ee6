package model

import (
	"slices"
	"time"

	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusActive   JobStatus = "ACTIVE"
	JobStatusStopped  JobStatus = "STOPPED"
	JobStatusFinished JobStatus = "FINISHED"
	JobStatusFailed   JobStatus = "FAILED"
)

// Job is a persisted mirror job: one source copied to every destination.
// StartedAt is when the destinations were last prepared and is used as the
// default cutoff when one of them is restored.
type Job struct {
	gorm.Model
	Src       string    `gorm:"not null;index"`
	Dsts      []string  `gorm:"serializer:json;not null"`
	StartedAt time.Time `gorm:"not null"`
	Status    JobStatus `gorm:"not null;default:'ACTIVE'"`
}

func (j Job) HasDst(dst string) bool {
	return slices.Contains(j.Dsts, dst)
}
