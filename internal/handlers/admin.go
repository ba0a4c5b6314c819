package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/catalog"
	"github.com/fitfeed/fitfeed/internal/recommend"
	"github.com/fitfeed/fitfeed/internal/services"
)

// jobTimeout bounds a background rebuild or retrain run.
const jobTimeout = 30 * time.Minute

type AdminHandler struct {
	logger     *logrus.Logger
	jobManager *services.JobManager
	engine     *recommend.Engine
	store      *catalog.Store
}

func NewAdminHandler(logger *logrus.Logger, jobManager *services.JobManager, engine *recommend.Engine, store *catalog.Store) *AdminHandler {
	return &AdminHandler{
		logger:     logger,
		jobManager: jobManager,
		engine:     engine,
		store:      store,
	}
}

// RebuildIndex handles POST /api/v1/admin/rebuild. The rebuild runs in
// the background; the response carries a job id to poll. A rebuild that
// is already running surfaces as a failed job, not a hung request.
func (h *AdminHandler) RebuildIndex(c *gin.Context) {
	job, err := h.jobManager.CreateJob(c.Request.Context(), services.JobTypeIndexRebuild)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create rebuild job")
		writeError(c, err)
		return
	}

	go h.runJob(job.JobID, func(ctx context.Context) (int, error) {
		items, err := h.store.AllItems(ctx)
		if err != nil {
			return 0, err
		}
		if err := h.engine.RebuildIndex(ctx, items); err != nil {
			return 0, err
		}
		return len(items), nil
	})

	c.JSON(http.StatusAccepted, job)
}

// RetrainCF handles POST /api/v1/admin/retrain.
func (h *AdminHandler) RetrainCF(c *gin.Context) {
	job, err := h.jobManager.CreateJob(c.Request.Context(), services.JobTypeCFRetrain)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create retrain job")
		writeError(c, err)
		return
	}

	go h.runJob(job.JobID, func(ctx context.Context) (int, error) {
		interactions, err := h.store.AllInteractions(ctx)
		if err != nil {
			return 0, err
		}
		if err := h.engine.RetrainCF(ctx, interactions); err != nil {
			return 0, err
		}
		return len(interactions), nil
	})

	c.JSON(http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/admin/jobs/:jobId.
func (h *AdminHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JOB_ID",
				"message": "Invalid job ID format",
			},
		})
		return
	}

	job, err := h.jobManager.GetJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "Job not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *AdminHandler) runJob(jobID uuid.UUID, run func(ctx context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := h.jobManager.MarkProcessing(ctx, jobID); err != nil {
		h.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to mark job processing")
	}

	count, err := run(ctx)
	if err != nil {
		h.logger.WithError(err).WithField("job_id", jobID).Error("Background job failed")
		if failErr := h.jobManager.FailJob(ctx, jobID, err.Error()); failErr != nil {
			h.logger.WithError(failErr).WithField("job_id", jobID).Warn("Failed to record job failure")
		}
		return
	}

	if err := h.jobManager.CompleteJob(ctx, jobID, count); err != nil {
		h.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to record job completion")
	}
}
