package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

type Item struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Sku        string    `gorm:"size:100;index;not null" json:"sku" binding:"required"`
	Name       string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Unit       string    `gorm:"size:20" json:"unit"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Sku  string `json:"sku" binding:"required"`
	Name string `json:"name" binding:"required"`
	Unit string `json:"unit"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewItem) validate(ctx context.Context, businessId string, id int) error {
	// sku
	if err := utils.ValidateUnique[Item](ctx, businessId, "sku", input.Sku, id); err != nil {
		return err
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {

	// <custom>
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	item := Item{
		BusinessId: businessId,
		Sku:        input.Sku,
		Name:       input.Name,
		Unit:       input.Unit,
		IsActive:   utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateItem(ctx context.Context, id int, input *NewItem) (*Item, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// sku is the item's identity, only name and unit are maintainable
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Updates(map[string]interface{}{
		"Name": input.Name,
		"Unit": input.Unit,
	}).Error
	if err != nil {
		return nil, err
	}

	return item, nil
}

func DeleteItem(ctx context.Context, id int) (*Item, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if item is used
	var count int64
	if err := db.WithContext(ctx).Model(&BomComponent{}).
		Where("business_id = ? AND sku = ?", businessId, result.Sku).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("item is used by a bill of materials")
	}
	if err := db.WithContext(ctx).Model(&RawInventory{}).
		Where("business_id = ? AND sku = ? AND quantity <> 0", businessId, result.Sku).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("item has stock")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	return GetResource[Item](ctx, id)
}

func GetItemBySku(ctx context.Context, sku string) (*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var result Item
	err := db.WithContext(ctx).Where("business_id = ? AND sku = ?", businessId, sku).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func ListItem(ctx context.Context, keyword *string) ([]*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Item

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if keyword != nil && len(*keyword) > 0 {
		dbCtx = dbCtx.Where("sku LIKE ? OR name LIKE ?", "%"+*keyword+"%", "%"+*keyword+"%")
	}
	// db query
	err := dbCtx.Order("sku").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveItem(ctx context.Context, id int, isActive bool) (*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Item](ctx, businessId, id, isActive)
}
