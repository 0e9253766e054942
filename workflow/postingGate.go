package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
)

// EnforcePostingGate re-checks batch lifecycle for the message (worker-side).
// Only zone completions are gated: the floor accepts a completion while the
// batch is open, but the batch can complete or cancel before the worker gets
// to post it, and consumption must not land in a closed batch. Lifecycle
// events carry their own state and the bulk types post nothing.
func EnforcePostingGate(ctx context.Context, msg config.PubSubMessage) error {
	if msg.ReferenceType != string(models.ProductionReferenceTypeZoneCompletion) {
		return nil
	}
	if msg.Action != string(models.PubSubMessageActionCreate) {
		return nil
	}

	var event models.ZoneCompletionEvent
	if err := json.Unmarshal([]byte(msg.NewObj), &event); err != nil {
		return err
	}
	batch, err := models.GetBatch(ctx, event.BatchId)
	if err != nil {
		return err
	}
	if batch.Status != models.BatchStatusInProgress {
		return fmt.Errorf("batch %s is %s; zone completion for vin %s can no longer post",
			batch.BatchNo, batch.Status, event.Vin)
	}
	return nil
}
