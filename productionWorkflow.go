package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"bitbucket.org/mmdatafocus/factory_backend/workflow"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("factory-backend")

var (
	businessMutexMap = make(map[string]*sync.Mutex)
	globalMutex      = &sync.Mutex{}
)

func RunProductionWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Specify the number of concurrent processes
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	// Create a callback function to handle messages.
	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.PubSubMessage{}
		err := json.Unmarshal(msg.Data, &m)
		if err != nil {
			config.LogError(logger, "ProductionWorkflow.go", "RunProductionWorkflow", "Unmarshaling pubsub message", msg.Data, err)
			return
		}

		ctx, span := tracer.Start(ctx, "production.consume",
			trace.WithAttributes(
				attribute.String("business_id", m.BusinessId),
				attribute.String("reference_type", m.ReferenceType),
				attribute.Int("reference_id", m.ReferenceId),
			))
		defer span.End()

		// Get or create the mutex for the current BusinessId
		globalMutex.Lock()
		mutex, exists := businessMutexMap[m.BusinessId]
		if !exists {
			mutex = &sync.Mutex{}
			businessMutexMap[m.BusinessId] = mutex
		}
		globalMutex.Unlock()

		// Lock the specific business mutex
		mutex.Lock()
		defer mutex.Unlock()

		ctx = context.WithValue(ctx, utils.ContextKeyBusinessId, m.BusinessId)
		ctx = context.WithValue(ctx, utils.ContextKeyUserId, 0)
		ctx = context.WithValue(ctx, utils.ContextKeyUserName, "System")
		if m.CorrelationId != "" {
			ctx = context.WithValue(ctx, utils.ContextKeyCorrelationId, m.CorrelationId)
		}
		markOutboxProcessing(ctx, m.ID)
		if err := ProcessMessage(ctx, logger, m); err != nil {
			span.RecordError(err)
			if dead := markOutboxProcessFailure(ctx, logger, m, err); dead {
				revertZoneStampOnDead(ctx, logger, m)
			}
			logger.WithFields(logrus.Fields{
				"field":          "ProductionWorkflow",
				"business_id":    m.BusinessId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.ID,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		markOutboxProcessSuccess(ctx, logger, m)
		msg.Ack()
	}

	// Receive messages.
	go func() {
		err := sub.Receive(ctx, callback)

		if err != nil {
			config.LogError(logger, "ProductionWorkflow.go", "RunProductionWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage) error {
	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		// Enforce strict per-business ordering across instances.
		if err := workflow.AcquireBusinessPostingLock(tx.WithContext(ctx), m.BusinessId); err != nil {
			return err
		}
		defer workflow.ReleaseBusinessPostingLock(tx.WithContext(ctx), m.BusinessId)

		// Worker-side lifecycle gate: the batch can close between the floor
		// accepting a completion and the worker posting it.
		if err := workflow.EnforcePostingGate(ctx, m); err != nil {
			now := time.Now().UTC()
			msg := err.Error()
			_ = tx.WithContext(ctx).Model(&models.ProductionEventRecord{}).
				Where("id = ?", m.ID).
				Updates(map[string]interface{}{
					"is_processed":       true,
					"last_process_error": &msg,
					"processed_at":       &now,
					"processing_status":  models.OutboxProcessStatusDead,
				}).Error

			if logger != nil {
				logger.WithFields(logrus.Fields{
					"field":          "PostingGate",
					"business_id":    m.BusinessId,
					"reference_type": m.ReferenceType,
					"reference_id":   m.ReferenceId,
					"message_id":     m.ID,
				}).Warn("posting gate blocked message: " + err.Error())
			}
			// Ack/drop permanently (do not retry); message would otherwise loop forever.
			return nil
		}

		// The base row can be deleted between enqueue and this claim.
		if err := models.ValidateProductionReference(ctx, m.BusinessId, m.ReferenceId,
			models.ProductionReferenceType(m.ReferenceType)); err != nil {
			return err
		}

		handlerName := m.ReferenceType
		messageId := strconv.Itoa(m.ID)

		skip, err := workflow.BeginIdempotency(tx.WithContext(ctx), m.BusinessId, handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		if err := ProcessWorkflow(ctx, tx.WithContext(ctx), logger, m); err != nil {
			_ = workflow.MarkIdempotencyFailed(tx.WithContext(ctx), m.BusinessId, handlerName, messageId, err)
			return err
		}
		if err := workflow.MarkIdempotencySucceeded(tx.WithContext(ctx), m.BusinessId, handlerName, messageId); err != nil {
			return err
		}
		return nil
	})
}

// ProcessWorkflow routes a claimed message to its posting handler.
func ProcessWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	switch msg.ReferenceType {
	case string(models.ProductionReferenceTypeZoneCompletion):
		return workflow.ProcessZoneCompletionWorkflow(ctx, tx, logger, msg)
	case string(models.ProductionReferenceTypeBatchActivated):
		return workflow.ProcessBatchActivatedWorkflow(ctx, tx, logger, msg)
	case string(models.ProductionReferenceTypeBatchCompleted):
		return workflow.ProcessBatchCompletedWorkflow(ctx, tx, logger, msg)
	case string(models.ProductionReferenceTypeStockZeroed),
		string(models.ProductionReferenceTypeAllocationMoved),
		string(models.ProductionReferenceTypePackingList):
		// Stream notifications for downstream consumers; nothing to post here.
		return tx.Model(&models.ProductionEventRecord{}).Where("id=?", msg.ID).
			Updates(map[string]interface{}{"is_processed": true}).Error
	}
	return nil
}
