package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/gin-gonic/gin"
)

// The audit trail is hook written; this surface is read only.

func optionalIntQuery(c *gin.Context, key string) (*int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return nil, false
	}
	return &value, true
}

func listHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		referenceId, ok := optionalIntQuery(c, "reference_id")
		if !ok {
			return
		}
		userId, ok := optionalIntQuery(c, "user_id")
		if !ok {
			return
		}
		referenceType := optionalQuery(c, "reference_type")

		// paged=true switches to the cursor connection
		if c.Query("paged") == "true" || c.Query("after") != "" {
			limit := 50
			if raw := c.Query("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
					return
				}
				limit = n
			}
			conn, err := models.PaginateHistory(c.Request.Context(), &limit, optionalQuery(c, "after"),
				referenceType, referenceId, userId, optionalQuery(c, "action_type"))
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, conn)
			return
		}

		histories, err := models.GetHistories(c.Request.Context(), referenceId, referenceType, userId)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, histories)
	}
}

func getHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		history, err := models.GetHistory(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

func registerHistoryRoutes(api *gin.RouterGroup) {
	api.GET("/histories", listHistoryHandler())
	api.GET("/histories/:id", getHistoryHandler())
}
