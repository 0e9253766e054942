package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

type CarType struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	Code        string    `gorm:"size:100;index;not null" json:"code" binding:"required"`
	Name        string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCarType struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (input *NewCarType) validate(ctx context.Context, businessId string, id int) error {
	// code
	if err := utils.ValidateUnique[CarType](ctx, businessId, "code", input.Code, id); err != nil {
		return err
	}
	return nil
}

func CreateCarType(ctx context.Context, input *NewCarType) (*CarType, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	carType := CarType{
		BusinessId:  businessId,
		Code:        input.Code,
		Name:        input.Name,
		Description: input.Description,
		IsActive:    utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&carType).Error
	if err != nil {
		return nil, err
	}
	return &carType, nil
}

func UpdateCarType(ctx context.Context, id int, input *NewCarType) (*CarType, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	carType, err := utils.FetchModel[CarType](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// code is referenced by mappings and batches, only name and description are maintainable
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&carType).Updates(map[string]interface{}{
		"Name":        input.Name,
		"Description": input.Description,
	}).Error
	if err != nil {
		return nil, err
	}

	return carType, nil
}

func DeleteCarType(ctx context.Context, id int) (*CarType, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[CarType](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if car type is used
	var count int64
	if err := db.WithContext(ctx).Model(&ZoneBomMapping{}).
		Where("business_id = ? AND car_code = ?", businessId, result.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("car type is used by a zone mapping")
	}
	if err := db.WithContext(ctx).Model(&Batch{}).
		Where("business_id = ? AND car_code = ?", businessId, result.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("car type is used by a batch")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetCarType(ctx context.Context, id int) (*CarType, error) {
	return GetResource[CarType](ctx, id)
}

func GetCarTypeByCode(ctx context.Context, code string) (*CarType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var result CarType
	err := db.WithContext(ctx).Where("business_id = ? AND code = ?", businessId, code).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func ListCarType(ctx context.Context, keyword *string) ([]*CarType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CarType

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if keyword != nil && len(*keyword) > 0 {
		dbCtx = dbCtx.Where("code LIKE ? OR name LIKE ?", "%"+*keyword+"%", "%"+*keyword+"%")
	}
	// db query
	err := dbCtx.Order("code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveCarType(ctx context.Context, id int, isActive bool) (*CarType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[CarType](ctx, businessId, id, isActive)
}
