package workflow

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func ProcessZoneCompletionWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {

	if msg.Action != string(models.PubSubMessageActionCreate) {
		// Completions are append-only; there is nothing to post for U/D.
		return nil
	}

	var event models.ZoneCompletionEvent
	err := json.Unmarshal([]byte(msg.NewObj), &event)
	if err != nil {
		config.LogError(logger, "ZoneCompletionWorkflow.go", "ProcessZoneCompletionWorkflow", "Unmarshal msg.NewObj", msg.NewObj, err)
		return err
	}

	consumptions, err := models.ConsumeForZoneCompletion(ctx, tx, &event)
	if err != nil {
		config.LogError(logger, "ZoneCompletionWorkflow.go", "ProcessZoneCompletionWorkflow", "ConsumeForZoneCompletion", event, err)
		return err
	}

	// A shortfall is not a posting failure. The unit already left the zone on
	// the floor, so the ledger keeps whatever could be consumed and the gap
	// surfaces here and in the batch health report.
	for _, consumption := range consumptions {
		if !consumption.Short() {
			continue
		}
		logger.WithFields(logrus.Fields{
			"field":       "ZoneCompletionWorkflow",
			"business_id": msg.BusinessId,
			"batch_no":    event.BatchNo,
			"vin":         event.Vin,
			"zone_code":   event.ZoneCode,
			"sku":         consumption.Sku,
			"required":    consumption.Required.String(),
			"consumed":    consumption.Consumed.String(),
		}).Warn("Component consumption fell short of the BOM requirement")
	}

	err = tx.Model(&models.ProductionEventRecord{}).Where("id=?", msg.ID).Updates(map[string]interface{}{"is_processed": true}).Error
	if err != nil {
		config.LogError(logger, "ZoneCompletionWorkflow.go", "ProcessZoneCompletionWorkflow", "Update event record", msg.ID, err)
		return err
	}

	return nil
}
