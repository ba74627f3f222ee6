package repository

import (
	"mirrorsync/internal/db"
	"mirrorsync/internal/model"
	"time"
)

type JobRepository struct{}

func NewJobRepository() *JobRepository {
	return &JobRepository{}
}

func (r *JobRepository) Add(src string, dsts []string) (model.Job, error) {
	job := model.Job{
		Src:       src,
		Dsts:      dsts,
		StartedAt: time.Now(),
		Status:    model.JobStatusActive,
	}

	return job, db.DB.Create(&job).Error
}

func (r *JobRepository) GetAll() ([]model.Job, error) {
	var jobs []model.Job
	return jobs, db.DB.Order("id").Find(&jobs).Error
}

func (r *JobRepository) GetActive() ([]model.Job, error) {
	var jobs []model.Job
	return jobs, db.DB.
		Where("status = ?", model.JobStatusActive).
		Order("id").
		Find(&jobs).Error
}

func (r *JobRepository) GetByID(id uint) (model.Job, error) {
	var job model.Job
	return job, db.DB.First(&job, id).Error
}

// LatestForDst returns the most recently started job mirroring into dst.
// ok is false when no job ever wrote to dst.
func (r *JobRepository) LatestForDst(dst string) (model.Job, bool, error) {
	jobs, err := r.GetAll()
	if err != nil {
		return model.Job{}, false, err
	}

	var (
		latest model.Job
		found  bool
	)
	for _, j := range jobs {
		if j.HasDst(dst) && (!found || j.StartedAt.After(latest.StartedAt)) {
			latest = j
			found = true
		}
	}

	return latest, found, nil
}

func (r *JobRepository) UpdateStatus(id uint, status model.JobStatus) error {
	return db.DB.Model(&model.Job{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *JobRepository) Touch(id uint, startedAt time.Time) error {
	return db.DB.Model(&model.Job{}).
		Where("id = ?", id).
		Update("started_at", startedAt).Error
}

func (r *JobRepository) Delete(id uint) error {
	return db.DB.Delete(&model.Job{}, id).Error
}
