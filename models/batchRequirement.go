package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchRequirement is one sku's demand line for an activated batch,
// snapshotted from the declared items at activation time. Consumption moves
// consumed and remaining; total_needed never changes after the snapshot.
type BatchRequirement struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;uniqueIndex:uniq_req_batch_sku,priority:1;not null" json:"business_id"`
	BatchId       int             `gorm:"uniqueIndex:uniq_req_batch_sku,priority:2;index;not null" json:"batch_id"`
	Sku           string          `gorm:"size:100;uniqueIndex:uniq_req_batch_sku,priority:3;not null" json:"sku"`
	TotalNeeded   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_needed"`
	Consumed      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"consumed"`
	Remaining     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"remaining"`
	CarsCompleted int             `gorm:"not null" json:"cars_completed"`
	TotalCars     int             `gorm:"not null" json:"total_cars"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetBatchRequirements(ctx context.Context, batchId int) ([]*BatchRequirement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*BatchRequirement

	// db query
	err := db.WithContext(ctx).
		Where("business_id = ? AND batch_id = ?", businessId, batchId).
		Order("sku").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetBatchRequirementForSku(ctx context.Context, batchId int, sku string) (*BatchRequirement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var result BatchRequirement
	err := db.WithContext(ctx).
		Where("business_id = ? AND batch_id = ? AND sku = ?", businessId, batchId, sku).
		First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

// applyConsumptionTx books a take against the batch's demand line under a
// row lock. A sku the batch never declared still gets a zero need row, so
// off plan consumption shows up in health instead of vanishing.
func applyConsumptionTx(tx *gorm.DB, businessId string, batchId int, sku string, taken decimal.Decimal, carPassed bool) error {
	var requirement BatchRequirement
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND batch_id = ? AND sku = ?", businessId, batchId, sku).
		First(&requirement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var batch Batch
		if err := tx.Where("business_id = ? AND id = ?", businessId, batchId).First(&batch).Error; err != nil {
			return err
		}
		requirement = BatchRequirement{
			BusinessId:  businessId,
			BatchId:     batchId,
			Sku:         sku,
			TotalNeeded: decimal.Zero,
			Consumed:    decimal.Zero,
			Remaining:   decimal.Zero,
			TotalCars:   batch.TotalCars,
		}
		if err := tx.Create(&requirement).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	requirement.Consumed = requirement.Consumed.Add(taken)
	requirement.Remaining = requirement.TotalNeeded.Sub(requirement.Consumed)
	if requirement.Remaining.IsNegative() {
		requirement.Remaining = decimal.Zero
	}
	if carPassed {
		requirement.CarsCompleted++
	}

	return tx.Model(&requirement).Updates(map[string]interface{}{
		"Consumed":      requirement.Consumed,
		"Remaining":     requirement.Remaining,
		"CarsCompleted": requirement.CarsCompleted,
	}).Error
}
