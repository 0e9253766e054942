package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/gin-gonic/gin"
)

func createBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBatch
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		batch, err := models.CreateBatch(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, batch)
	}
}

func updateBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewBatch
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		batch, err := models.UpdateBatch(c.Request.Context(), id, &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func activateBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		batch, err := models.ActivateBatch(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func completeBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		batch, err := models.CompleteBatch(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func cancelBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		batch, err := models.CancelBatch(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func deleteBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		force := c.Query("force") == "true"
		batch, err := models.DeleteBatch(c.Request.Context(), id, force)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func getBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		batch, err := models.GetBatch(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func listBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// all=true serves the slim cached list for pickers
		if c.Query("all") == "true" {
			batches, err := models.ListAllBatch(c.Request.Context())
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, batches)
			return
		}
		var status *models.BatchStatus
		if raw := c.Query("status"); raw != "" {
			s := models.BatchStatus(raw)
			status = &s
		}
		batches, err := models.ListBatch(c.Request.Context(), status)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, batches)
	}
}

func getBatchRequirementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		requirements, err := models.GetBatchRequirements(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, requirements)
	}
}

func addVinPlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input []*models.NewVinPlan
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		plans, err := models.AddVinPlans(c.Request.Context(), id, input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, plans)
	}
}

func listVinPlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		plans, err := models.GetVinPlansForBatch(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, plans)
	}
}

func deleteVinPlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		plan, err := models.DeleteVinPlan(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

// recordZoneCompletionHandler is the floor entry point. It stamps the unit
// and writes the outbox event; consumption is posted by the workflow worker.
func recordZoneCompletionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewZoneCompletion
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		event, err := models.RecordZoneCompletion(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, event)
	}
}

func registerBatchRoutes(api *gin.RouterGroup) {
	api.POST("/batches", createBatchHandler())
	api.GET("/batches", listBatchHandler())
	api.GET("/batches/:id", getBatchHandler())
	api.PUT("/batches/:id", updateBatchHandler())
	api.DELETE("/batches/:id", deleteBatchHandler())
	api.POST("/batches/:id/activate", activateBatchHandler())
	api.POST("/batches/:id/complete", completeBatchHandler())
	api.POST("/batches/:id/cancel", cancelBatchHandler())
	api.GET("/batches/:id/requirements", getBatchRequirementsHandler())
	api.POST("/batches/:id/vin-plans", addVinPlansHandler())
	api.GET("/batches/:id/vin-plans", listVinPlansHandler())
	api.DELETE("/vin-plans/:id", deleteVinPlanHandler())

	api.POST("/production/zone-completions", recordZoneCompletionHandler())
}
