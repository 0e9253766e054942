package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

// VinPlan is one unit in a batch's build plan. Plan order is id ascending,
// so the insert order of an import is the order health evaluation walks.
type VinPlan struct {
	ID           int        `gorm:"primary_key" json:"id"`
	BusinessId   string     `gorm:"size:64;uniqueIndex:uniq_batch_vin,priority:1;not null" json:"business_id"`
	BatchId      int        `gorm:"uniqueIndex:uniq_batch_vin,priority:2;index;not null" json:"batch_id"`
	Vin          string     `gorm:"size:100;uniqueIndex:uniq_batch_vin,priority:3;not null" json:"vin" binding:"required"`
	CarCode      string     `gorm:"size:100;not null" json:"car_code"`
	LastZoneCode string     `gorm:"size:100" json:"last_zone_code"`
	LastZoneAt   *time.Time `json:"last_zone_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVinPlan struct {
	Vin     string `json:"vin" binding:"required"`
	CarCode string `json:"car_code"`
}

// AddVinPlans appends units to a batch's plan in input order. Rows default
// to the batch's car type when the input does not carry one.
func AddVinPlans(ctx context.Context, batchId int, input []*NewVinPlan) ([]*VinPlan, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if len(input) == 0 {
		return nil, errors.New("vin plan is empty")
	}

	batch, err := utils.FetchModelForChange[Batch](ctx, businessId, batchId)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(input))
	vins := make([]string, 0, len(input))
	for _, row := range input {
		if row.Vin == "" {
			return nil, errors.New("vin is required")
		}
		if seen[row.Vin] {
			return nil, errors.New("duplicate vin: " + row.Vin)
		}
		seen[row.Vin] = true
		vins = append(vins, row.Vin)
		if row.CarCode != "" && row.CarCode != batch.CarCode {
			count, err := utils.ResourceCountWhere[CarType](ctx, businessId, "code = ?", row.CarCode)
			if err != nil {
				return nil, err
			}
			if count <= 0 {
				return nil, errors.New("car type not found: " + row.CarCode)
			}
		}
	}

	db := config.GetDB()
	var existing int64
	err = db.WithContext(ctx).Model(&VinPlan{}).
		Where("business_id = ? AND batch_id = ? AND vin IN ?", businessId, batchId, vins).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, errors.New("vin already planned in this batch")
	}

	plans := make([]*VinPlan, 0, len(input))
	for _, row := range input {
		carCode := row.CarCode
		if carCode == "" {
			carCode = batch.CarCode
		}
		plans = append(plans, &VinPlan{
			BusinessId: businessId,
			BatchId:    batchId,
			Vin:        row.Vin,
			CarCode:    carCode,
		})
	}

	// db action
	err = db.WithContext(ctx).CreateInBatches(plans, 500).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func DeleteVinPlan(ctx context.Context, id int) (*VinPlan, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	plan, err := utils.FetchModel[VinPlan](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	batch, err := utils.FetchModel[Batch](ctx, businessId, plan.BatchId)
	if err != nil {
		return nil, err
	}
	if batch.Status != BatchStatusPlanning {
		return nil, errors.New("batch is not in planning")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Delete(&plan).Error
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func GetVinPlansForBatch(ctx context.Context, batchId int) ([]*VinPlan, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*VinPlan

	// db query
	err := db.WithContext(ctx).
		Where("business_id = ? AND batch_id = ?", businessId, batchId).
		Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FindVinPlanForProduction resolves a floor event's vin to its plan row in
// an in progress batch. A vin rebuilt across batches resolves to the open one.
func FindVinPlanForProduction(ctx context.Context, businessId string, vin string) (*VinPlan, error) {
	db := config.GetDB()
	var plan VinPlan

	err := db.WithContext(ctx).
		Joins("JOIN batches ON batches.id = vin_plans.batch_id AND batches.business_id = vin_plans.business_id").
		Where("vin_plans.business_id = ? AND vin_plans.vin = ? AND batches.status = ?",
			businessId, vin, BatchStatusInProgress).
		First(&plan).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &plan, nil
}

// MarkZonePassed stamps the unit's latest station inside the caller's
// transaction.
func MarkZonePassed(tx *gorm.DB, plan *VinPlan, zoneCode string, at time.Time) error {
	return tx.Model(plan).Updates(map[string]interface{}{
		"LastZoneCode": zoneCode,
		"LastZoneAt":   &at,
	}).Error
}

// RevertZoneStamp clears a unit's zone stamp, but only while it still shows
// the given zone. Used when a completion's posting is abandoned so a re-scan
// can record the station again.
func RevertZoneStamp(ctx context.Context, businessId string, planId int, zoneCode string) (bool, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&VinPlan{}).
		Where("id = ? AND business_id = ? AND last_zone_code = ?", planId, businessId, zoneCode).
		Updates(map[string]interface{}{
			"LastZoneCode": "",
			"LastZoneAt":   nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type NewZoneCompletion struct {
	Vin         string `json:"vin" binding:"required"`
	ZoneCode    string `json:"zone_code" binding:"required"`
	CarCode     string `json:"car_code"`
	CompletedBy string `json:"completed_by"`
}

// ZoneCompletionEvent is the outbox payload for a unit finishing a zone.
// Component consumption happens when the event is processed, not here.
type ZoneCompletionEvent struct {
	VinPlanId   int       `json:"vin_plan_id"`
	BatchId     int       `json:"batch_id"`
	BatchNo     string    `json:"batch_no"`
	Vin         string    `json:"vin"`
	ZoneCode    string    `json:"zone_code"`
	CarCode     string    `json:"car_code"`
	CompletedBy string    `json:"completed_by"`
	CompletedAt time.Time `json:"completed_at"`
}

// RecordZoneCompletion stamps the plan row and queues the consumption event
// in one transaction.
func RecordZoneCompletion(ctx context.Context, input *NewZoneCompletion) (*ZoneCompletionEvent, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	zone, err := GetZoneByCode(ctx, input.ZoneCode)
	if err != nil {
		return nil, err
	}

	plan, err := FindVinPlanForProduction(ctx, businessId, input.Vin)
	if err != nil {
		return nil, err
	}
	if input.CarCode != "" && input.CarCode != plan.CarCode {
		return nil, errors.New("car type does not match the vin plan")
	}

	batch, err := utils.FetchModel[Batch](ctx, businessId, plan.BatchId)
	if err != nil {
		return nil, err
	}

	completedBy := input.CompletedBy
	if completedBy == "" {
		completedBy, _ = utils.GetUserNameFromContext(ctx)
	}

	now := time.Now()
	event := ZoneCompletionEvent{
		VinPlanId:   plan.ID,
		BatchId:     batch.ID,
		BatchNo:     batch.BatchNo,
		Vin:         plan.Vin,
		ZoneCode:    zone.Code,
		CarCode:     plan.CarCode,
		CompletedBy: completedBy,
		CompletedAt: now,
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := MarkZonePassed(tx.WithContext(ctx), plan, zone.Code, now); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToProduction(ctx, tx, businessId, now, plan.ID,
		ProductionReferenceTypeZoneCompletion, &event, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &event, tx.Commit().Error
}
