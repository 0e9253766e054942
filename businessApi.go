package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Business administration lives outside /api because creating the first
// tenant cannot require an X-Business-Id header.

func createBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, business)
	}
}

func updateBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), c.Param("id"))
		business, err := models.UpdateBusiness(ctx, &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func toggleBusinessActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid business id"})
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		business, err := models.ToggleActiveBusiness(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func getBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		business, err := models.GetBusinessById(c.Request.Context(), c.Param("id"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func listBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// all=true serves the slim cached list for tenant pickers
		if c.Query("all") == "true" {
			businesses, err := models.ListAllBusiness(c.Request.Context())
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, businesses)
			return
		}
		businesses, err := models.GetBusinesses(c.Request.Context(), optionalQuery(c, "name"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, businesses)
	}
}

func registerBusinessRoutes(r *gin.Engine) {
	admin := r.Group("/admin/businesses")
	admin.POST("", createBusinessHandler())
	admin.GET("", listBusinessHandler())
	admin.GET("/:id", getBusinessHandler())
	admin.PUT("/:id", updateBusinessHandler())
	admin.PATCH("/:id/active", toggleBusinessActiveHandler())
}
