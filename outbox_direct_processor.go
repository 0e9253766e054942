package main

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDirectProcessor processes unhandled outbox records without Pub/Sub.
// This is intended for local/dev environments where Pub/Sub is not configured.
type OutboxDirectProcessor struct {
	DB         *gorm.DB
	Logger     *logrus.Logger
	WorkerID   string
	BatchSize  int
	Interval   time.Duration
	LockTTL    time.Duration
	Processing string
}

func NewOutboxDirectProcessor(db *gorm.DB, logger *logrus.Logger) *OutboxDirectProcessor {
	return &OutboxDirectProcessor{
		DB:        db,
		Logger:    logger,
		WorkerID:  "direct-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

func shouldRunDirectOutboxProcessor() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_PROCESSING")))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	// Default: run as a safety-net even when Pub/Sub is configured.
	//
	// Why:
	// - In some environments Pub/Sub settings may exist but delivery/permissions can be misconfigured,
	//   leaving outbox rows stuck in PENDING/FAILED/SENT without consumption ever being posted.
	// - Running the direct processor as a background "backup worker" ensures events are eventually posted.
	// - Processing is protected by DB idempotency keys + ledger immutability, so at-least-once delivery is safe.
	//
	// To disable in production, explicitly set OUTBOX_DIRECT_PROCESSING=false.
	return true
}

func (p *OutboxDirectProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *OutboxDirectProcessor) processOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.ProductionEventRecord
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("is_processed = 0").
			Where("processing_status <> ?", models.OutboxProcessStatusDead).
			Where("(next_process_attempt_at IS NULL OR next_process_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &p.WorkerID
			if err := tx.Model(&models.ProductionEventRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": claimed[i].LockedAt,
					"locked_by": claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		msg := models.ConvertToPubSubMessage(rec)
		procCtx := context.WithValue(ctx, utils.ContextKeyBusinessId, rec.BusinessId)
		procCtx = context.WithValue(procCtx, utils.ContextKeyUserId, 0)
		procCtx = context.WithValue(procCtx, utils.ContextKeyUserName, "System")
		procCtx = utils.SetCorrelationIdInContext(procCtx, rec.CorrelationId)

		markOutboxProcessing(procCtx, rec.ID)
		if err := ProcessMessage(procCtx, p.Logger, msg); err != nil {
			if dead := markOutboxProcessFailure(procCtx, p.Logger, msg, err); dead {
				revertZoneStampOnDead(procCtx, p.Logger, msg)
			}
			if p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{
					"field":          "OutboxDirectProcessor",
					"business_id":    rec.BusinessId,
					"reference_type": rec.ReferenceType,
					"reference_id":   rec.ReferenceId,
					"record_id":      rec.ID,
				}).Error("direct processing failed: " + err.Error())
			}
			continue
		}

		markOutboxProcessSuccess(procCtx, p.Logger, msg)
	}
}
