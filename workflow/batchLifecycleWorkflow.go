package workflow

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func ProcessBatchActivatedWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {

	var batch models.Batch
	err := json.Unmarshal([]byte(msg.NewObj), &batch)
	if err != nil {
		config.LogError(logger, "BatchLifecycleWorkflow.go", "ProcessBatchActivatedWorkflow", "Unmarshal msg.NewObj", msg.NewObj, err)
		return err
	}

	// The requirement snapshot is written by the activation transaction. The
	// worker only reports how the batch starts out against current stock, so
	// a batch that goes live already short shows up in the logs right away.
	report, err := ComputeBatchHealth(ctx, batch.ID)
	if err != nil {
		config.LogError(logger, "BatchLifecycleWorkflow.go", "ProcessBatchActivatedWorkflow", "ComputeBatchHealth", batch.ID, err)
		return err
	}

	fields := logrus.Fields{
		"field":         "BatchLifecycleWorkflow",
		"business_id":   msg.BusinessId,
		"batch_no":      batch.BatchNo,
		"health":        report.Status,
		"blocked_count": report.BlockedCount,
	}
	if report.Status == BatchHealthCritical {
		logger.WithFields(fields).Warn("Batch activated with blocked components")
	} else {
		logger.WithFields(fields).Info("Batch activated")
	}

	err = tx.Model(&models.ProductionEventRecord{}).Where("id=?", msg.ID).Updates(map[string]interface{}{"is_processed": true}).Error
	if err != nil {
		config.LogError(logger, "BatchLifecycleWorkflow.go", "ProcessBatchActivatedWorkflow", "Update event record", msg.ID, err)
		return err
	}
	return nil
}

func ProcessBatchCompletedWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {

	var batch models.Batch
	err := json.Unmarshal([]byte(msg.NewObj), &batch)
	if err != nil {
		config.LogError(logger, "BatchLifecycleWorkflow.go", "ProcessBatchCompletedWorkflow", "Unmarshal msg.NewObj", msg.NewObj, err)
		return err
	}

	requirements, err := models.GetBatchRequirements(ctx, batch.ID)
	if err != nil {
		config.LogError(logger, "BatchLifecycleWorkflow.go", "ProcessBatchCompletedWorkflow", "GetBatchRequirements", batch.ID, err)
		return err
	}

	openSkus := 0
	openQty := decimal.Zero
	for _, requirement := range requirements {
		if requirement.Remaining.IsPositive() {
			openSkus++
			openQty = openQty.Add(requirement.Remaining)
		}
	}
	if openSkus > 0 {
		logger.WithFields(logrus.Fields{
			"field":         "BatchLifecycleWorkflow",
			"business_id":   msg.BusinessId,
			"batch_no":      batch.BatchNo,
			"open_skus":     openSkus,
			"open_quantity": openQty.String(),
		}).Warn("Batch completed with unconsumed requirements")
	}

	// Stock still reserved under the finished batch stays where it is until
	// someone transfers or zeroes it, so flag it for the operators.
	leftovers, err := models.GetBatchAllocatedQuantities(ctx, msg.BusinessId, batch.BatchNo)
	if err != nil {
		config.LogError(logger, "BatchLifecycleWorkflow.go", "ProcessBatchCompletedWorkflow", "GetBatchAllocatedQuantities", batch.BatchNo, err)
		return err
	}
	leftoverQty := decimal.Zero
	for _, qty := range leftovers {
		leftoverQty = leftoverQty.Add(qty)
	}
	if leftoverQty.IsPositive() {
		logger.WithFields(logrus.Fields{
			"field":         "BatchLifecycleWorkflow",
			"business_id":   msg.BusinessId,
			"batch_no":      batch.BatchNo,
			"leftover_skus": len(leftovers),
			"leftover_qty":  leftoverQty.String(),
		}).Info("Batch completed with leftover allocations")
	}

	err = tx.Model(&models.ProductionEventRecord{}).Where("id=?", msg.ID).Updates(map[string]interface{}{"is_processed": true}).Error
	if err != nil {
		config.LogError(logger, "BatchLifecycleWorkflow.go", "ProcessBatchCompletedWorkflow", "Update event record", msg.ID, err)
		return err
	}
	return nil
}
