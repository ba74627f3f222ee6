package model

import "time"

type JobSnapshot struct {
	JobID     uint       `json:"job_id"`
	Src       string     `json:"src"`
	Dsts      []string   `json:"dsts"`
	Phase     string     `json:"phase"`
	StartedAt time.Time  `json:"started_at"`
	Synced    int        `json:"synced"`
	Failed    int        `json:"failed"`
	LastSync  *time.Time `json:"last_sync"`
}
