package floorsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{Status: models.FloorConnectionDisconnected},
				Aliases:    StationAliases{},
			})
			return
		}

		counts := map[string]int64{}
		rows, err := deliveryCounts(db, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		for status, n := range rows {
			counts[status] = n
		}

		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Status:    conn.Status,
				PlantCode: conn.PlantCode,
				LineCode:  conn.LineCode,
			},
			LastEventAt:    formatTime(conn.LastEventAt),
			LastDeliveryAt: formatTime(conn.LastDeliveryAt),
			Aliases:        DecodeAliases(conn.SettingsJSON),
			Pending:        counts[models.FloorDeliveryPending],
			Failed:         counts[models.FloorDeliveryFailed],
			Dead:           counts[models.FloorDeliveryDead],
		})
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.PlantCode) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "plantCode is required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(db, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		if conn == nil {
			conn = &models.FloorConnection{
				BusinessId:   businessId,
				Provider:     models.FloorProviderMES,
				Status:       models.FloorConnectionConnected,
				PlantCode:    strings.TrimSpace(req.PlantCode),
				LineCode:     strings.TrimSpace(req.LineCode),
				SettingsJSON: EncodeAliases(req.Aliases),
				UpdatedAt:    now,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			update := map[string]interface{}{
				"status":     models.FloorConnectionConnected,
				"plant_code": strings.TrimSpace(req.PlantCode),
				"line_code":  strings.TrimSpace(req.LineCode),
				"updated_at": now,
			}
			if req.Aliases != nil {
				update["settings_json"] = EncodeAliases(req.Aliases)
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":     models.FloorConnectionDisconnected,
			"updated_at": time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(db, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "no floor connection; connect first"})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"settings_json": EncodeAliases(req.Aliases),
			"updated_at":    time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DeliveriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		limit := 50
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		q := db.Where("business_id = ?", businessId)
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			q = q.Where("status = ?", strings.ToUpper(status))
		}
		if vin := strings.TrimSpace(c.Query("vin")); vin != "" {
			q = q.Where("vin = ?", vin)
		}

		var rows []models.FloorDelivery
		if err := q.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]DeliveryResponse, 0, len(rows))
		for _, row := range rows {
			items = append(items, mapDeliveryToResponse(row))
		}
		c.JSON(http.StatusOK, DeliveryListResponse{Items: items})
	}
}

func DeliveryDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var row models.FloorDelivery
		if err := db.Where("id = ? AND business_id = ?", id, businessId).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"delivery": mapDeliveryToResponse(row),
			"payload":  string(row.PayloadJSON),
		})
	}
}

func ReplayDeliveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}

		row, err := ReplayDelivery(c.Request.Context(), config.GetLogger(), businessId, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			status := http.StatusBadGateway
			if row == nil {
				status = http.StatusBadRequest
			}
			resp := gin.H{"error": err.Error()}
			if row != nil {
				resp["delivery"] = mapDeliveryToResponse(*row)
			}
			c.JSON(status, resp)
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivery": mapDeliveryToResponse(*row)})
	}
}

func getConnection(db *gorm.DB, businessId string) (*models.FloorConnection, error) {
	var conn models.FloorConnection
	err := db.Where("business_id = ? AND provider = ?", businessId, models.FloorProviderMES).Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func deliveryCounts(db *gorm.DB, businessId string) (map[string]int64, error) {
	type statusCount struct {
		Status string
		N      int64
	}
	var rows []statusCount
	if err := db.Model(&models.FloorDelivery{}).
		Select("status, COUNT(*) AS n").
		Where("business_id = ?", businessId).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapDeliveryToResponse(row models.FloorDelivery) DeliveryResponse {
	return DeliveryResponse{
		ID:          row.ID,
		MessageId:   row.MessageId,
		Vin:         row.Vin,
		ZoneCode:    row.ZoneCode,
		CarCode:     row.CarCode,
		Status:      row.Status,
		Attempts:    row.Attempts,
		LastError:   row.LastError,
		EventTime:   formatTime(row.EventTime),
		DeliveredAt: formatTime(row.DeliveredAt),
	}
}
