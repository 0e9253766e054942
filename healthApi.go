package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"bitbucket.org/mmdatafocus/factory_backend/workflow"
	"github.com/gin-gonic/gin"
)

func globalHealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := workflow.ComputeGlobalHealth(c.Request.Context())
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func batchHealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := batchPathId(c)
		if !ok {
			return
		}
		report, err := workflow.ComputeBatchHealth(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// batchPathId resolves the :id segment as a row id, or as a batch number
// when it is not numeric. Floor staff know batch numbers, not row ids.
func batchPathId(c *gin.Context) (int, bool) {
	raw := c.Param("id")
	if id, err := strconv.Atoi(raw); err == nil {
		if id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return 0, false
		}
		return id, true
	}
	batch, err := models.GetBatchByNo(c.Request.Context(), raw)
	if err != nil {
		apiError(c, err)
		return 0, false
	}
	return batch.ID, true
}

func vinHealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := batchPathId(c)
		if !ok {
			return
		}
		report, err := workflow.ComputeVinHealth(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// lookupProductionVinHandler answers the scanner's "which unit is this"
// question against batches currently in progress.
func lookupProductionVinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vin := c.Param("vin")
		if vin == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vin is required"})
			return
		}
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}
		plan, err := models.FindVinPlanForProduction(c.Request.Context(), businessId, vin)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

func registerHealthRoutes(api *gin.RouterGroup) {
	api.GET("/health/global", globalHealthHandler())
	api.GET("/health/batches/:id", batchHealthHandler())
	api.GET("/health/batches/:id/vins", vinHealthHandler())

	api.GET("/production/vins/:vin", lookupProductionVinHandler())
}
