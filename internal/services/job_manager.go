package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/pkg/models"
)

const (
	JobTypeIndexRebuild = "index_rebuild"
	JobTypeCFRetrain    = "cf_retrain"

	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"

	jobTTL = 24 * time.Hour
)

// JobManager tracks background rebuild and retrain runs in Redis. Jobs
// expire after jobTTL; nothing about a job needs to survive a restart since
// rebuilds are re-runnable.
type JobManager struct {
	redisClient *redis.Client
	logger      *logrus.Logger
}

func NewJobManager(redisClient *redis.Client, logger *logrus.Logger) *JobManager {
	return &JobManager{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (jm *JobManager) CreateJob(ctx context.Context, jobType string) (*models.JobStatus, error) {
	now := time.Now()
	job := &models.JobStatus{
		JobID:     uuid.New(),
		Type:      jobType,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := jm.store(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store job: %w", err)
	}

	jm.logger.WithFields(logrus.Fields{
		"job_id":   job.JobID,
		"job_type": jobType,
	}).Info("Job created")

	return job, nil
}

func (jm *JobManager) GetJob(ctx context.Context, jobID uuid.UUID) (*models.JobStatus, error) {
	data, err := jm.redisClient.Get(ctx, jobKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job %s not found", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job models.JobStatus
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (jm *JobManager) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	return jm.update(ctx, jobID, func(job *models.JobStatus) {
		job.Status = JobStatusProcessing
	})
}

func (jm *JobManager) CompleteJob(ctx context.Context, jobID uuid.UUID, itemCount int) error {
	err := jm.update(ctx, jobID, func(job *models.JobStatus) {
		job.Status = JobStatusCompleted
		job.ItemCount = itemCount
	})
	if err != nil {
		return err
	}

	jm.logger.WithFields(logrus.Fields{
		"job_id":     jobID,
		"item_count": itemCount,
	}).Info("Job completed")
	return nil
}

func (jm *JobManager) FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	err := jm.update(ctx, jobID, func(job *models.JobStatus) {
		job.Status = JobStatusFailed
		job.ErrorMessage = &errorMessage
	})
	if err != nil {
		return err
	}

	jm.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"error":  errorMessage,
	}).Warn("Job failed")
	return nil
}

func (jm *JobManager) update(ctx context.Context, jobID uuid.UUID, mutate func(*models.JobStatus)) error {
	job, err := jm.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	mutate(job)
	job.UpdatedAt = time.Now()

	if err := jm.store(ctx, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

func (jm *JobManager) store(ctx context.Context, job *models.JobStatus) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return jm.redisClient.Set(ctx, jobKey(job.JobID), data, jobTTL).Err()
}

func jobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}
