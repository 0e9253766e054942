package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

// a production line station; units move through zones in sequence order
type Zone struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Code       string    `gorm:"size:100;index;not null" json:"code" binding:"required"`
	Name       string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Sequence   int       `gorm:"not null;default:0" json:"sequence"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewZone struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Sequence int    `json:"sequence"`
}

func (input *NewZone) validate(ctx context.Context, businessId string, id int) error {
	// code
	if err := utils.ValidateUnique[Zone](ctx, businessId, "code", input.Code, id); err != nil {
		return err
	}
	return nil
}

func CreateZone(ctx context.Context, input *NewZone) (*Zone, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	zone := Zone{
		BusinessId: businessId,
		Code:       input.Code,
		Name:       input.Name,
		Sequence:   input.Sequence,
		IsActive:   utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&zone).Error
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

func UpdateZone(ctx context.Context, id int, input *NewZone) (*Zone, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	zone, err := utils.FetchModel[Zone](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&zone).Updates(map[string]interface{}{
		"Name":     input.Name,
		"Sequence": input.Sequence,
	}).Error
	if err != nil {
		return nil, err
	}

	return zone, nil
}

func DeleteZone(ctx context.Context, id int) (*Zone, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Zone](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if zone is used
	var count int64
	if err := db.WithContext(ctx).Model(&ZoneBomMapping{}).
		Where("business_id = ? AND zone_code = ?", businessId, result.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("zone is used by a zone mapping")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetZone(ctx context.Context, id int) (*Zone, error) {
	return GetResource[Zone](ctx, id)
}

func GetZoneByCode(ctx context.Context, code string) (*Zone, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var result Zone
	err := db.WithContext(ctx).Where("business_id = ? AND code = ?", businessId, code).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func ListZone(ctx context.Context, name *string) ([]*Zone, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Zone

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("sequence, code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveZone(ctx context.Context, id int, isActive bool) (*Zone, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Zone](ctx, businessId, id, isActive)
}
