package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

type DeclaredItem struct {
	Sku      string          `json:"sku"`
	Quantity decimal.Decimal `json:"quantity"`
}

type DeclaredItemList []DeclaredItem

func (l DeclaredItemList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *DeclaredItemList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = DeclaredItemList{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("cannot scan %T into DeclaredItemList", value)
}

type Batch struct {
	ID            int              `gorm:"primary_key" json:"id"`
	BusinessId    string           `gorm:"index;not null" json:"business_id"`
	BatchNo       string           `gorm:"size:100;index;not null" json:"batch_no" binding:"required"`
	Name          string           `gorm:"size:255;not null" json:"name" binding:"required"`
	CarCode       string           `gorm:"size:100;not null" json:"car_code" binding:"required"`
	TotalCars     int              `gorm:"not null" json:"total_cars"`
	Status        BatchStatus      `gorm:"size:20;index;not null;default:'planning'" json:"status"`
	DeclaredItems DeclaredItemList `gorm:"type:json" json:"declared_items"`
	ActivatedAt   *time.Time       `json:"activated_at"`
	CompletedAt   *time.Time       `json:"completed_at"`
	VinPlans      []VinPlan        `gorm:"foreignKey:BatchId" json:"vin_plans,omitempty"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// completed and cancelled batches are frozen
func (b Batch) CheckLifecycleLock(ctx context.Context) error {
	if b.Status == BatchStatusCompleted {
		return errors.New("batch has been completed")
	}
	if b.Status == BatchStatusCancelled {
		return errors.New("batch has been cancelled")
	}
	return nil
}

type NewBatch struct {
	BatchNo       string            `json:"batch_no" binding:"required"`
	Name          string            `json:"name" binding:"required"`
	CarCode       string            `json:"car_code" binding:"required"`
	TotalCars     int               `json:"total_cars" binding:"required,gt=0"`
	DeclaredItems []NewDeclaredItem `json:"declared_items" binding:"dive"`
}

type NewDeclaredItem struct {
	Sku      string          `json:"sku" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
}

func (input *NewBatch) validate(ctx context.Context, businessId string, id int) error {
	if input.BatchNo == UnassignedPool {
		return errors.New("batch no is reserved")
	}
	// batch no
	if err := utils.ValidateUnique[Batch](ctx, businessId, "batch_no", input.BatchNo, id); err != nil {
		return err
	}
	count, err := utils.ResourceCountWhere[CarType](ctx, businessId, "code = ?", input.CarCode)
	if err != nil {
		return err
	}
	if count <= 0 {
		return errors.New("car type not found")
	}
	seen := make(map[string]bool, len(input.DeclaredItems))
	for _, item := range input.DeclaredItems {
		if !item.Quantity.IsPositive() {
			return errors.New("declared quantity must be positive")
		}
		if seen[item.Sku] {
			return errors.New("duplicate declared sku")
		}
		seen[item.Sku] = true
		count, err := utils.ResourceCountWhere[Item](ctx, businessId, "sku = ?", item.Sku)
		if err != nil {
			return err
		}
		if count <= 0 {
			return errors.New("declared item not found: " + item.Sku)
		}
	}
	return nil
}

func (input *NewBatch) toDeclaredItemList() DeclaredItemList {
	declared := make(DeclaredItemList, 0, len(input.DeclaredItems))
	for _, item := range input.DeclaredItems {
		declared = append(declared, DeclaredItem{Sku: item.Sku, Quantity: item.Quantity})
	}
	return declared
}

func CreateBatch(ctx context.Context, input *NewBatch) (*Batch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	batch := Batch{
		BusinessId:    businessId,
		BatchNo:       input.BatchNo,
		Name:          input.Name,
		CarCode:       input.CarCode,
		TotalCars:     input.TotalCars,
		Status:        BatchStatusPlanning,
		DeclaredItems: input.toDeclaredItemList(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateBatch edits the plan. Only planning batches may change; an activated
// batch already has its requirement snapshot.
func UpdateBatch(ctx context.Context, id int, input *NewBatch) (*Batch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	batch, err := utils.FetchModelForChange[Batch](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if batch.Status != BatchStatusPlanning {
		return nil, errors.New("batch is not in planning")
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&batch).Updates(map[string]interface{}{
		"BatchNo":       input.BatchNo,
		"Name":          input.Name,
		"CarCode":       input.CarCode,
		"TotalCars":     input.TotalCars,
		"DeclaredItems": input.toDeclaredItemList(),
	}).Error
	if err != nil {
		return nil, err
	}

	return batch, nil
}

// ActivateBatch moves planning to in_progress and snapshots the declared
// items into requirement rows, all in one transaction.
func ActivateBatch(ctx context.Context, id int) (*Batch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	var batch Batch
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).First(&batch).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if batch.Status != BatchStatusPlanning {
		tx.Rollback()
		return nil, errors.New("batch is not in planning")
	}
	if len(batch.DeclaredItems) == 0 {
		tx.Rollback()
		return nil, errors.New("batch has no declared items")
	}

	before := batch
	now := time.Now()
	err = tx.WithContext(ctx).Model(&batch).Updates(map[string]interface{}{
		"Status":      BatchStatusInProgress,
		"ActivatedAt": &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	batch.Status = BatchStatusInProgress
	batch.ActivatedAt = &now

	// requirement snapshot, one row per declared sku
	for _, item := range batch.DeclaredItems {
		requirement := BatchRequirement{
			BusinessId:    businessId,
			BatchId:       batch.ID,
			Sku:           item.Sku,
			TotalNeeded:   item.Quantity,
			Consumed:      decimal.Zero,
			Remaining:     item.Quantity,
			CarsCompleted: 0,
			TotalCars:     batch.TotalCars,
		}
		if err := tx.WithContext(ctx).Create(&requirement).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := PublishToProduction(ctx, tx, businessId, now, batch.ID,
		ProductionReferenceTypeBatchActivated, &batch, &before, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &batch, tx.Commit().Error
}

func CompleteBatch(ctx context.Context, id int) (*Batch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	var batch Batch
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).First(&batch).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if batch.Status != BatchStatusInProgress {
		tx.Rollback()
		return nil, errors.New("batch is not in progress")
	}

	before := batch
	now := time.Now()
	err = tx.WithContext(ctx).Model(&batch).Updates(map[string]interface{}{
		"Status":      BatchStatusCompleted,
		"CompletedAt": &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	batch.Status = BatchStatusCompleted
	batch.CompletedAt = &now

	if err := PublishToProduction(ctx, tx, businessId, now, batch.ID,
		ProductionReferenceTypeBatchCompleted, &batch, &before, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &batch, tx.Commit().Error
}

func CancelBatch(ctx context.Context, id int) (*Batch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	batch, err := utils.FetchModelForChange[Batch](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&batch).Updates(map[string]interface{}{
		"Status": BatchStatusCancelled,
	}).Error
	if err != nil {
		return nil, err
	}
	batch.Status = BatchStatusCancelled

	return batch, nil
}

// DeleteBatch cascades to the batch's vin plan, requirement rows and its key
// in every allocation map. Allocations are zeroed first so a partial zero
// failure leaves the batch in place for a retry.
func DeleteBatch(ctx context.Context, id int, force bool) (*Batch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	batch, err := utils.FetchModel[Batch](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if batch.Status == BatchStatusInProgress && !force {
		return nil, errors.New("batch is in progress")
	}

	report, err := ZeroStockForBatch(ctx, batch.BatchNo)
	if err != nil {
		return nil, err
	}
	if len(report.Failures) > 0 {
		return nil, fmt.Errorf("allocation cleanup failed for %d of %d records", len(report.Failures), report.RecordsAffected+len(report.Failures))
	}

	db := config.GetDB()
	tx := db.Begin()
	err = tx.WithContext(ctx).Where("business_id = ? AND batch_id = ?", businessId, id).Delete(&VinPlan{}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.WithContext(ctx).Where("business_id = ? AND batch_id = ?", businessId, id).Delete(&BatchRequirement{}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.WithContext(ctx).Delete(&batch).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return batch, tx.Commit().Error
}

func GetBatch(ctx context.Context, id int) (*Batch, error) {
	return GetResource[Batch](ctx, id)
}

func GetBatchByNo(ctx context.Context, batchNo string) (*Batch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var result Batch
	err := db.WithContext(ctx).Where("business_id = ? AND batch_no = ?", businessId, batchNo).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func ListBatch(ctx context.Context, status *BatchStatus) ([]*Batch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Batch

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	// db query
	err := dbCtx.Order("batch_no").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetActiveBatches is a derived view over the status column. Keeping it a
// query (not a cached registry) means a completed batch drops out the moment
// its row changes.
func GetActiveBatches(ctx context.Context, businessId string) ([]*Batch, error) {
	db := config.GetDB()
	var results []*Batch

	err := db.WithContext(ctx).
		Where("business_id = ? AND status = ?", businessId, BatchStatusInProgress).
		Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
