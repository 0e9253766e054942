package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/workflow"
	"github.com/gin-gonic/gin"
)

// Internal operator endpoints. These are not session scoped; the caller
// names the business explicitly, like the outbox replay endpoint does.

func opsBusinessContext(c *gin.Context) (string, bool) {
	businessId := c.Query("business_id")
	if businessId == "" {
		businessId = c.GetHeader("X-Business-Id")
	}
	if businessId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
		return "", false
	}
	return businessId, true
}

func consistencyScanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := opsBusinessContext(c)
		if !ok {
			return
		}
		ctx := ensureBusinessContext(c.Request.Context(), businessId)
		gaps, err := workflow.ScanAllocationConsistency(ctx)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"business_id": businessId,
			"gap_count":   len(gaps),
			"gaps":        gaps,
		})
	}
}

func inventoryRebuildHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := opsBusinessContext(c)
		if !ok {
			return
		}
		ctx := ensureBusinessContext(c.Request.Context(), businessId)
		report, err := workflow.RebuildExpectedFromAllocations(ctx, config.GetLogger())
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := opsBusinessContext(c)
		if !ok {
			return
		}
		ctx := ensureBusinessContext(c.Request.Context(), businessId)
		summary, err := workflow.RunReconciliationChecks(ctx, config.GetDB(), config.GetLogger(), businessId)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func reconciliationReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := opsBusinessContext(c)
		if !ok {
			return
		}
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}
		ctx := ensureBusinessContext(c.Request.Context(), businessId)
		reports, err := models.ListReconciliationReports(ctx, optionalQuery(c, "check_type"), optionalQuery(c, "correlation_id"), limit)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"business_id": businessId,
			"count":       len(reports),
			"reports":     reports,
		})
	}
}

func outboxRecordRef(c *gin.Context) (models.ProductionReferenceType, int, bool) {
	referenceType := models.ProductionReferenceType(c.Param("referenceType"))
	referenceId, err := strconv.Atoi(c.Param("referenceId"))
	if err != nil || referenceId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reference id"})
		return "", 0, false
	}
	return referenceType, referenceId, true
}

func outboxStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := opsBusinessContext(c)
		if !ok {
			return
		}
		referenceType, referenceId, ok := outboxRecordRef(c)
		if !ok {
			return
		}
		ctx := ensureBusinessContext(c.Request.Context(), businessId)
		status, err := models.GetOutboxStatus(ctx, referenceType, referenceId)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// outboxReprocessHandler revives a stuck or dead record so the dispatcher
// and processor pick it up again from scratch.
func outboxReprocessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := opsBusinessContext(c)
		if !ok {
			return
		}
		referenceType, referenceId, ok := outboxRecordRef(c)
		if !ok {
			return
		}
		ctx := ensureBusinessContext(c.Request.Context(), businessId)
		status, err := models.ReprocessOutbox(ctx, referenceType, referenceId)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func stuckOutboxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := opsBusinessContext(c)
		if !ok {
			return
		}
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}
		ctx := ensureBusinessContext(c.Request.Context(), businessId)
		records, err := models.ListStuckOutboxRecords(ctx, limit)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"business_id": businessId,
			"count":       len(records),
			"records":     records,
		})
	}
}

func registerOpsRoutes(r *gin.Engine) {
	r.GET("/internal/ops/consistency", consistencyScanHandler())
	r.POST("/internal/ops/rebuild", inventoryRebuildHandler())
	r.POST("/internal/ops/reconcile", reconcileHandler())
	r.GET("/internal/ops/reconcile/reports", reconciliationReportsHandler())
	r.GET("/internal/ops/outbox/stuck", stuckOutboxHandler())
	r.GET("/internal/ops/outbox/:referenceType/:referenceId", outboxStatusHandler())
	r.POST("/internal/ops/outbox/:referenceType/:referenceId/reprocess", outboxReprocessHandler())
}
