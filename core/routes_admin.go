package core

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func (h *routeHandlers) registerAdminRoutes(g *gin.RouterGroup) {
	admin := g.Group("/admin")

	metrics := admin.Group("/metrics", h.requireMetrics)
	{
		metrics.GET("/overview", func(c *gin.Context) {
			queueMetrics, workers, err := h.deps.Metrics.Overview(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load metrics")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"queues":  queueMetrics,
				"workers": workers,
			})
		})

		metrics.GET("/queues", func(c *gin.Context) {
			queueMetrics, err := h.deps.Metrics.Queue(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load queue metrics")
				return
			}
			c.JSON(http.StatusOK, queueMetrics)
		})

		metrics.GET("/workers", func(c *gin.Context) {
			workers, err := h.deps.Metrics.Workers(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load workers")
				return
			}
			c.JSON(http.StatusOK, gin.H{"workers": workers})
		})

		metrics.GET("/workers/:id", func(c *gin.Context) {
			hb, err := h.deps.Metrics.WorkerByID(c.Request.Context(), c.Param("id"))
			if err != nil {
				if errors.Is(err, redis.Nil) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "worker not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load worker")
				return
			}
			c.JSON(http.StatusOK, hb)
		})
	}

	admin.GET("/system/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, CollectSystemStatus(c.Request.Context(), h.deps.DB, h.deps.Metrics, h.startedAt))
	})

	admin.GET("/system/logs", func(c *gin.Context) {
		page, perPage, ok := pageBounds(c)
		if !ok {
			return
		}
		if h.deps.Audit == nil {
			respondList(c, []AuditEntry{}, page, perPage, 0)
			return
		}
		items, total, err := h.deps.Audit.List(c.Request.Context(), page, perPage)
		if err != nil {
			respondRepoError(c, err, "system log")
			return
		}
		respondList(c, items, page, perPage, total)
	})

	admin.GET("/users", func(c *gin.Context) {
		page, perPage, ok := pageBounds(c)
		if !ok {
			return
		}
		items, total, err := h.deps.Staff.List(c.Request.Context(), page, perPage)
		if err != nil {
			respondRepoError(c, err, "staff user")
			return
		}
		respondList(c, items, page, perPage, total)
	})
}

func (h *routeHandlers) requireMetrics(c *gin.Context) {
	if h.deps.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "queue metrics are not configured")
		c.Abort()
		return
	}
	c.Next()
}
