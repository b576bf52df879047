package handler

import (
	"net/http"

	"fulfillment/internal/apierror"
	"fulfillment/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// JobsHandler exposes the dead letter queue of the override audit mailer.
type JobsHandler struct{ rdb *redis.Client }

func NewJobsHandler(rdb *redis.Client) *JobsHandler { return &JobsHandler{rdb: rdb} }

// DeadLetters godoc
// @Summary Counts dead-lettered override audit notices
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /v1/admin/jobs/dlq [get]
func (h *JobsHandler) DeadLetters(c *gin.Context) {
	n, err := worker.DLQLength(c.Request.Context(), h.rdb, worker.QueueOverrideAudit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{worker.QueueOverrideAudit: n})
}

// Redrive godoc
// @Summary Requeues dead-lettered override audit notices
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int
// @Failure 503 {object} apierror.APIError
// @Router /v1/admin/jobs/dlq/redrive [post]
func (h *JobsHandler) Redrive(c *gin.Context) {
	moved, err := worker.Redrive(c.Request.Context(), h.rdb, worker.QueueOverrideAudit, 100)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, apierror.New(apierror.CodeInternal, "redrive interrupted"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": moved})
}
