package main

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/sirupsen/logrus"
)

func ensureBusinessContext(ctx context.Context, businessId string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if businessId == "" {
		return ctx
	}
	if _, ok := utils.GetBusinessIdFromContext(ctx); !ok {
		ctx = context.WithValue(ctx, utils.ContextKeyBusinessId, businessId)
	}
	return ctx
}

// revertZoneStampOnDead clears the unit's zone stamp when its consumption
// posting is given up on. The floor event itself cannot be taken back, but
// clearing the stamp keeps the unit from showing as past a station whose
// consumption never reached the ledger, and a re-scan publishes a fresh event.
func revertZoneStampOnDead(ctx context.Context, logger *logrus.Logger, msg config.PubSubMessage) {
	if msg.ReferenceType != string(models.ProductionReferenceTypeZoneCompletion) {
		return
	}
	if msg.ReferenceId <= 0 {
		return
	}

	ctx = ensureBusinessContext(ctx, msg.BusinessId)

	var event models.ZoneCompletionEvent
	if err := json.Unmarshal([]byte(msg.NewObj), &event); err != nil {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":          "OutboxDeadRevert",
				"business_id":    msg.BusinessId,
				"reference_type": msg.ReferenceType,
				"reference_id":   msg.ReferenceId,
			}).Warn("failed to decode completion for DEAD revert: " + err.Error())
		}
		return
	}

	reverted, err := models.RevertZoneStamp(ctx, msg.BusinessId, msg.ReferenceId, event.ZoneCode)
	if err != nil {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":          "OutboxDeadRevert",
				"business_id":    msg.BusinessId,
				"reference_type": msg.ReferenceType,
				"reference_id":   msg.ReferenceId,
				"vin":            event.Vin,
				"zone_code":      event.ZoneCode,
			}).Warn("failed to revert zone stamp after DEAD posting: " + err.Error())
		}
		return
	}

	if reverted && logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "OutboxDeadRevert",
			"business_id":    msg.BusinessId,
			"reference_type": msg.ReferenceType,
			"reference_id":   msg.ReferenceId,
			"vin":            event.Vin,
			"zone_code":      event.ZoneCode,
		}).Info("reverted zone stamp after DEAD posting; unit can be re-scanned")
	}
}
