package floorsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var errUnknownTenant = errors.New("no connected floor feed matches the event")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func maxAttempts() int {
	if v := strings.TrimSpace(os.Getenv("FLOOR_SYNC_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 8
}

// processFloorEvent is the bridge's whole job for one message: resolve the
// tenant, claim the message id, and post the completion. A non-nil return
// asks the transport to redeliver; everything the backend permanently
// rejected is parked DEAD instead.
func processFloorEvent(ctx context.Context, logger *logrus.Logger, event FloorEvent) error {
	if strings.TrimSpace(event.MessageId) == "" || strings.TrimSpace(event.Vin) == "" {
		// Nothing to dedupe on or nothing to deliver; drop it.
		logger.WithFields(logrus.Fields{
			"field": "floorsync",
			"plant": event.PlantCode,
			"vin":   event.Vin,
		}).Warn("dropping floor event without message_id or vin")
		return nil
	}

	db := config.GetDB()
	conn, err := resolveConnection(ctx, db, event)
	if err != nil {
		if errors.Is(err, errUnknownTenant) {
			logger.WithFields(logrus.Fields{
				"field":      "floorsync",
				"plant":      event.PlantCode,
				"line":       event.LineCode,
				"message_id": event.MessageId,
			}).Warn("dropping floor event: " + err.Error())
			return nil
		}
		return err
	}

	row, fresh, err := claimDelivery(ctx, db, conn, event)
	if err != nil {
		return err
	}
	if row == nil {
		// Already delivered or dead; ack the redelivery.
		return nil
	}
	if !fresh {
		logger.WithFields(logrus.Fields{
			"field":      "floorsync",
			"message_id": event.MessageId,
			"attempts":   row.Attempts,
		}).Info("retrying floor delivery")
	}

	now := time.Now().UTC()
	_ = db.WithContext(ctx).Model(&models.FloorConnection{}).
		Where("id = ?", conn.ID).
		Update("last_event_at", now).Error

	return deliverRow(ctx, logger, db, conn, row)
}

// resolveConnection finds the tenant for an event. An explicit business_id
// on the wire wins; otherwise the plant and line codes identify the
// connection. Only connected feeds accept events.
func resolveConnection(ctx context.Context, db *gorm.DB, event FloorEvent) (*models.FloorConnection, error) {
	q := db.WithContext(ctx).Model(&models.FloorConnection{}).
		Where("provider = ? AND status = ?", models.FloorProviderMES, models.FloorConnectionConnected)

	if bid := strings.TrimSpace(event.BusinessId); bid != "" {
		q = q.Where("business_id = ?", bid)
	} else {
		plant := strings.TrimSpace(event.PlantCode)
		if plant == "" {
			return nil, errUnknownTenant
		}
		q = q.Where("plant_code = ?", plant)
		if line := strings.TrimSpace(event.LineCode); line != "" {
			q = q.Where("(line_code = ? OR line_code = '')", line)
		}
	}

	var conn models.FloorConnection
	if err := q.Order("id").Take(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUnknownTenant
		}
		return nil, err
	}
	return &conn, nil
}

// claimDelivery inserts the dedupe row. On a duplicate it returns the
// existing row when that row still wants delivery, and nil when the message
// is already settled.
func claimDelivery(ctx context.Context, db *gorm.DB, conn *models.FloorConnection, event FloorEvent) (*models.FloorDelivery, bool, error) {
	payload, _ := json.Marshal(event)
	var eventTime *time.Time
	if ts := strings.TrimSpace(event.CompletedAt); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			utc := parsed.UTC()
			eventTime = &utc
		}
	}

	zone := DecodeAliases(conn.SettingsJSON).Resolve(event)
	row := models.FloorDelivery{
		BusinessId:  conn.BusinessId,
		MessageId:   event.MessageId,
		Vin:         event.Vin,
		ZoneCode:    zone,
		CarCode:     event.CarCode,
		CompletedBy: event.CompletedBy,
		EventTime:   eventTime,
		Status:      models.FloorDeliveryPending,
		PayloadJSON: payload,
	}
	if err := db.WithContext(ctx).Create(&row).Error; err == nil {
		return &row, true, nil
	} else if !isDuplicateKeyErr(err) {
		return nil, false, err
	}

	var existing models.FloorDelivery
	if err := db.WithContext(ctx).
		Where("business_id = ? AND message_id = ?", conn.BusinessId, event.MessageId).
		Take(&existing).Error; err != nil {
		return nil, false, err
	}

	switch existing.Status {
	case models.FloorDeliveryPending, models.FloorDeliveryFailed:
		return &existing, false, nil
	default:
		return nil, false, nil
	}
}

// deliverRow posts one claimed delivery and settles its row.
func deliverRow(ctx context.Context, logger *logrus.Logger, db *gorm.DB, conn *models.FloorConnection, row *models.FloorDelivery) error {
	client, err := newBackendClient()
	if err != nil {
		return err
	}

	attempt := row.Attempts + 1
	postErr := client.postZoneCompletion(ctx, row.BusinessId, zoneCompletionRequest{
		Vin:         row.Vin,
		ZoneCode:    row.ZoneCode,
		CarCode:     row.CarCode,
		CompletedBy: row.CompletedBy,
	})

	now := time.Now().UTC()
	if postErr == nil {
		if err := db.WithContext(ctx).Model(&models.FloorDelivery{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"status":       models.FloorDeliveryDelivered,
				"attempts":     attempt,
				"last_error":   nil,
				"delivered_at": &now,
			}).Error; err != nil {
			return err
		}
		_ = db.WithContext(ctx).Model(&models.FloorConnection{}).
			Where("id = ?", conn.ID).
			Update("last_delivery_at", now).Error
		logger.WithFields(logrus.Fields{
			"field":      "floorsync",
			"vin":        row.Vin,
			"zone_code":  row.ZoneCode,
			"message_id": row.MessageId,
			"attempt":    attempt,
		}).Info("floor completion delivered")
		return nil
	}

	msg := postErr.Error()
	status := models.FloorDeliveryFailed
	if !Retryable(postErr) || attempt >= maxAttempts() {
		status = models.FloorDeliveryDead
	}
	if err := db.WithContext(ctx).Model(&models.FloorDelivery{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   attempt,
			"last_error": &msg,
		}).Error; err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"field":      "floorsync",
		"vin":        row.Vin,
		"zone_code":  row.ZoneCode,
		"message_id": row.MessageId,
		"attempt":    attempt,
		"status":     status,
	}).Error("floor delivery failed: " + msg)

	if status == models.FloorDeliveryDead {
		notifyDeadDelivery(logger, row, attempt, msg)
		// Parked for a manual replay; stop asking the transport to retry.
		return nil
	}
	return postErr
}

// notifyDeadDelivery tells the plant team a message was parked. Best effort;
// the row itself is the source of truth for replays.
func notifyDeadDelivery(logger *logrus.Logger, row *models.FloorDelivery, attempt int, lastError string) {
	topic := strings.TrimSpace(os.Getenv("FLOOR_SYNC_DEAD_TOPIC"))
	if topic == "" {
		return
	}
	row.Status = models.FloorDeliveryDead
	row.Attempts = attempt
	row.LastError = &lastError
	if err := config.PublishIntegrationMessage(topic, row); err != nil {
		logger.WithFields(logrus.Fields{
			"field":      "floorsync",
			"message_id": row.MessageId,
		}).Warn("dead delivery notification failed: " + err.Error())
	}
}

// ReplayDelivery re-posts a parked delivery by id. Dead rows get a fresh
// attempt budget so a fixed backend does not park them again immediately.
func ReplayDelivery(ctx context.Context, logger *logrus.Logger, businessId string, id int) (*models.FloorDelivery, error) {
	db := config.GetDB()

	var row models.FloorDelivery
	if err := db.WithContext(ctx).
		Where("id = ? AND business_id = ?", id, businessId).
		Take(&row).Error; err != nil {
		return nil, err
	}
	if row.Status == models.FloorDeliveryDelivered {
		return &row, errors.New("delivery already succeeded")
	}

	var conn models.FloorConnection
	if err := db.WithContext(ctx).
		Where("business_id = ? AND provider = ?", businessId, models.FloorProviderMES).
		Take(&conn).Error; err != nil {
		return nil, fmt.Errorf("no floor connection for business: %w", err)
	}

	if row.Status == models.FloorDeliveryDead {
		if err := db.WithContext(ctx).Model(&models.FloorDelivery{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"status":   models.FloorDeliveryPending,
				"attempts": 0,
			}).Error; err != nil {
			return nil, err
		}
		row.Status = models.FloorDeliveryPending
		row.Attempts = 0
	}

	if err := deliverRow(ctx, logger, db, &conn, &row); err != nil {
		_ = db.WithContext(ctx).
			Where("id = ?", row.ID).
			Take(&row).Error
		return &row, err
	}
	if err := db.WithContext(ctx).
		Where("id = ?", row.ID).
		Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
