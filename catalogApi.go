package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/gin-gonic/gin"
)

// apiError maps model errors onto HTTP statuses. Anything that is not a
// missing record is treated as a caller problem.
func apiError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func optionalQuery(c *gin.Context, key string) *string {
	value := c.Query(key)
	if value == "" {
		return nil
	}
	return &value
}

type toggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func createItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := models.CreateItem(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func updateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := models.UpdateItem(c.Request.Context(), id, &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func deleteItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := models.DeleteItem(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func getItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := models.GetItem(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func listItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// all=true serves the slim cached list for pickers
		if c.Query("all") == "true" {
			items, err := models.ListAllItem(c.Request.Context())
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, items)
			return
		}
		items, err := models.ListItem(c.Request.Context(), optionalQuery(c, "keyword"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func toggleItemActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		item, err := models.ToggleActiveItem(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func createBomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBom
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		bom, err := models.CreateBom(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bom)
	}
}

func updateBomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewBom
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		bom, err := models.UpdateBom(c.Request.Context(), id, &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, bom)
	}
}

func deleteBomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bom, err := models.DeleteBom(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, bom)
	}
}

func getBomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bom, err := models.GetBom(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, bom)
	}
}

func listBomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("all") == "true" {
			boms, err := models.ListAllBom(c.Request.Context())
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, boms)
			return
		}
		boms, err := models.ListBom(c.Request.Context(), optionalQuery(c, "keyword"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, boms)
	}
}

func toggleBomActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		bom, err := models.ToggleActiveBom(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, bom)
	}
}

func createCarTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCarType
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		carType, err := models.CreateCarType(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, carType)
	}
}

func updateCarTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewCarType
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		carType, err := models.UpdateCarType(c.Request.Context(), id, &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, carType)
	}
}

func deleteCarTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		carType, err := models.DeleteCarType(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, carType)
	}
}

func getCarTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// plant integrations address car types by code, not row id
		raw := c.Param("id")
		if _, err := strconv.Atoi(raw); err != nil {
			carType, err := models.GetCarTypeByCode(c.Request.Context(), raw)
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, carType)
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		carType, err := models.GetCarType(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, carType)
	}
}

func listCarTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("all") == "true" {
			carTypes, err := models.ListAllCarType(c.Request.Context())
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, carTypes)
			return
		}
		carTypes, err := models.ListCarType(c.Request.Context(), optionalQuery(c, "keyword"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, carTypes)
	}
}

func toggleCarTypeActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		carType, err := models.ToggleActiveCarType(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, carType)
	}
}

func createZoneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewZone
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		zone, err := models.CreateZone(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, zone)
	}
}

func updateZoneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewZone
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		zone, err := models.UpdateZone(c.Request.Context(), id, &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, zone)
	}
}

func deleteZoneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		zone, err := models.DeleteZone(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, zone)
	}
}

func getZoneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		zone, err := models.GetZone(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, zone)
	}
}

func listZoneHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("all") == "true" {
			zones, err := models.ListAllZone(c.Request.Context())
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, zones)
			return
		}
		zones, err := models.ListZone(c.Request.Context(), optionalQuery(c, "keyword"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, zones)
	}
}

func toggleZoneActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		zone, err := models.ToggleActiveZone(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, zone)
	}
}

func createZoneBomMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewZoneBomMapping
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mapping, err := models.CreateZoneBomMapping(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, mapping)
	}
}

func updateZoneBomMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewZoneBomMapping
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mapping, err := models.UpdateZoneBomMapping(c.Request.Context(), id, &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, mapping)
	}
}

func deleteZoneBomMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		mapping, err := models.DeleteZoneBomMapping(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, mapping)
	}
}

func getZoneBomMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		mapping, err := models.GetZoneBomMapping(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, mapping)
	}
}

func listZoneBomMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		mappings, err := models.ListZoneBomMapping(c.Request.Context(), optionalQuery(c, "zone_code"), optionalQuery(c, "car_code"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, mappings)
	}
}

func registerCatalogRoutes(api *gin.RouterGroup) {
	api.POST("/items", createItemHandler())
	api.GET("/items", listItemHandler())
	api.GET("/items/:id", getItemHandler())
	api.PUT("/items/:id", updateItemHandler())
	api.DELETE("/items/:id", deleteItemHandler())
	api.PATCH("/items/:id/active", toggleItemActiveHandler())

	api.POST("/boms", createBomHandler())
	api.GET("/boms", listBomHandler())
	api.GET("/boms/:id", getBomHandler())
	api.PUT("/boms/:id", updateBomHandler())
	api.DELETE("/boms/:id", deleteBomHandler())
	api.PATCH("/boms/:id/active", toggleBomActiveHandler())

	api.POST("/car-types", createCarTypeHandler())
	api.GET("/car-types", listCarTypeHandler())
	api.GET("/car-types/:id", getCarTypeHandler())
	api.PUT("/car-types/:id", updateCarTypeHandler())
	api.DELETE("/car-types/:id", deleteCarTypeHandler())
	api.PATCH("/car-types/:id/active", toggleCarTypeActiveHandler())

	api.POST("/zones", createZoneHandler())
	api.GET("/zones", listZoneHandler())
	api.GET("/zones/:id", getZoneHandler())
	api.PUT("/zones/:id", updateZoneHandler())
	api.DELETE("/zones/:id", deleteZoneHandler())
	api.PATCH("/zones/:id/active", toggleZoneActiveHandler())

	api.POST("/zone-bom-mappings", createZoneBomMappingHandler())
	api.GET("/zone-bom-mappings", listZoneBomMappingHandler())
	api.GET("/zone-bom-mappings/:id", getZoneBomMappingHandler())
	api.PUT("/zone-bom-mappings/:id", updateZoneBomMappingHandler())
	api.DELETE("/zone-bom-mappings/:id", deleteZoneBomMappingHandler())
}
