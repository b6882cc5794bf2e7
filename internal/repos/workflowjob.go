package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/types"
)

type WorkflowJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.WorkflowJob) ([]*types.WorkflowJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.WorkflowJob, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, limit int) ([]*types.WorkflowJob, error)

	// Claims the next job that is runnable:
	// - status=queued
	// - OR status=failed and attempts < maxAttempts and last_error_at older than retryDelay (or NULL)
	// - OR status=processing but heartbeat is stale (crash recovery)
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, workerID string, maxAttempts int, retryDelay time.Duration, staleProcessing time.Duration) (*types.WorkflowJob, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type workflowJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowJobRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowJobRepo {
	repoLog := baseLog.With("repo", "WorkflowJobRepo")
	return &workflowJobRepo{db: db, log: repoLog}
}

func (r *workflowJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.WorkflowJob) ([]*types.WorkflowJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.WorkflowJob{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *workflowJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.WorkflowJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.WorkflowJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *workflowJobRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, limit int) ([]*types.WorkflowJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.WorkflowJob
	if ownerUserID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *workflowJobRepo) ClaimNextRunnable(
	ctx context.Context,
	tx *gorm.DB,
	workerID string,
	maxAttempts int,
	retryDelay time.Duration,
	staleProcessing time.Duration,
) (*types.WorkflowJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleProcessing)

	var claimed *types.WorkflowJob

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.WorkflowJob

		q := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.JobStatusQueued, types.JobStatusFailed, maxAttempts, retryCutoff, types.JobStatusProcessing, staleCutoff).
			Order("created_at ASC")

		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		// Claim it: mark processing, increment attempts, set lock/heartbeat.
		uErr := txx.Model(&types.WorkflowJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_by":    workerID,
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		claimed = &job
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *workflowJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.WorkflowJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *workflowJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.WorkflowJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusProcessing).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
