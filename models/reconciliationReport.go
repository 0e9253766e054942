package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

// ReconciliationReport is one persisted drift finding. Rows accumulate per
// run (nightly or admin-triggered) and are never updated; the correlation id
// groups the findings of a single run.
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"` // e.g. STOCK_LAYERS, LEDGER_ALLOCATION
	Sku           string    `gorm:"size:100;index;not null" json:"sku"`
	Location      string    `gorm:"size:100" json:"location"`
	BatchNo       string    `gorm:"size:100;index" json:"batch_no"`
	Details       string    `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func ListReconciliationReports(ctx context.Context, checkType *string, correlationId *string, limit int) ([]*ReconciliationReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*ReconciliationReport

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if checkType != nil && *checkType != "" {
		dbCtx = dbCtx.Where("check_type = ?", *checkType)
	}
	if correlationId != nil && *correlationId != "" {
		dbCtx = dbCtx.Where("correlation_id = ?", *correlationId)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	// db query
	err := dbCtx.Order("id DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
