package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reelqueue/reelqueue/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Job interface {
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Count(ctx context.Context, filter *JobQueryFilter) (int64, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	GetForUpdate(ctx context.Context, id string) (*model.Job, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Update(ctx context.Context, job model.Job, fields ...string) (*model.Job, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) ([]model.JobStat, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := s.getDB(ctx).Model(&jobs)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) Count(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	var count int64
	tx := s.getDB(ctx).Model(&model.Job{})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := s.getDB(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &job, nil
}

// GetForUpdate reads the job and, on postgres, locks its row until the
// surrounding transaction ends.
func (s *JobStore) GetForUpdate(ctx context.Context, id string) (*model.Job, error) {
	db := s.getDB(ctx)
	if db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var job model.Job
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("locking job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if err := s.getDB(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return &job, nil
}

// Update writes only the given columns of job and returns the stored row.
func (s *JobStore) Update(ctx context.Context, job model.Job, fields ...string) (*model.Job, error) {
	if len(fields) > 0 {
		job.UpdatedAt = time.Now()
		fields = append(fields, "updated_at")

		result := s.getDB(ctx).Model(&model.Job{ID: job.ID}).Select(fields).Updates(&job)
		if result.Error != nil {
			return nil, fmt.Errorf("updating job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrRecordNotFound
		}
	}
	return s.Get(ctx, job.ID)
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	result := s.getDB(ctx).Delete(&model.Job{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// Stats counts the jobs per provider and status.
func (s *JobStore) Stats(ctx context.Context) ([]model.JobStat, error) {
	var stats []model.JobStat
	err := s.getDB(ctx).Model(&model.Job{}).
		Select("provider, status, COUNT(*) AS count").
		Group("provider, status").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("computing job stats: %w", err)
	}
	return stats, nil
}
