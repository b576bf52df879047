package handler

import (
	"context"
	"net/http"
	"time"

	"fulfillment/internal/infra"
	"fulfillment/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health reports Postgres and Redis reachability. The mail breaker state and
// the audit queue depths are informational and never fail the check.
func Health(db *gorm.DB, rdb *redis.Client, mailCB *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		body := gin.H{
			"ok":    status == http.StatusOK,
			"db":    dbStatus,
			"redis": redisStatus,
		}
		if mailCB != nil {
			body["mailer"] = mailCB.State().String()
		}
		if redisStatus == "connected" {
			pending, _ := rdb.LLen(ctx, worker.QueueOverrideAudit).Result()
			dead, _ := worker.DLQLength(ctx, rdb, worker.QueueOverrideAudit)
			body["audit_queue"] = gin.H{"pending": pending, "dead_lettered": dead}
		}
		c.JSON(status, body)
	}
}
