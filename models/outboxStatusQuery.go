package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

func GetOutboxStatus(ctx context.Context, referenceType ProductionReferenceType, referenceId int) (*OutboxStatus, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var rec ProductionEventRecord
	if err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		return nil, err
	}

	processing := rec.ProcessingStatus
	if processing == "" {
		if rec.IsProcessed {
			processing = OutboxProcessStatusSucceeded
		} else {
			processing = OutboxProcessStatusPending
		}
	}

	var postingStatus OutboxPostingStatus
	switch processing {
	case OutboxProcessStatusProcessing:
		postingStatus = OutboxPostingStatusProcessing
	case OutboxProcessStatusFailed:
		postingStatus = OutboxPostingStatusFailed
	case OutboxProcessStatusDead:
		postingStatus = OutboxPostingStatusDead
	case OutboxProcessStatusSucceeded:
		postingStatus = OutboxPostingStatusSucceeded
	default:
		// If the row is already processed, always show SUCCEEDED (even if older rows have legacy values).
		if rec.IsProcessed {
			postingStatus = OutboxPostingStatusSucceeded
		} else {
			postingStatus = OutboxPostingStatusPending
		}
	}

	return &OutboxStatus{
		RecordId:             rec.ID,
		ReferenceType:        rec.ReferenceType,
		ReferenceId:          rec.ReferenceId,
		PublishStatus:        rec.PublishStatus,
		ProcessingStatus:     postingStatus,
		IsProcessed:          rec.IsProcessed,
		PublishAttempts:      rec.PublishAttempts,
		ProcessAttempts:      rec.ProcessAttempts,
		NextAttemptAt:        rec.NextAttemptAt,
		NextProcessAttemptAt: rec.NextProcessAttemptAt,
		LastPublishError:     rec.LastPublishError,
		LastProcessError:     rec.LastProcessError,
		CreatedAt:            rec.CreatedAt,
		PublishedAt:          rec.PublishedAt,
		ProcessedAt:          rec.ProcessedAt,
	}, nil
}

// ListStuckOutboxRecords returns unprocessed outbox rows whose publish or
// posting side has failed or gone dead, oldest first.
func ListStuckOutboxRecords(ctx context.Context, limit int) ([]*ProductionEventRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	stuck := []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}
	db := config.GetDB()
	var records []*ProductionEventRecord
	err := db.WithContext(ctx).
		Where("business_id = ? AND is_processed = 0", businessId).
		Where("publish_status IN ? OR processing_status IN ?", stuck, []string{OutboxProcessStatusFailed, OutboxProcessStatusDead}).
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

