package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

// ZoneBomMapping declares which bom a car type consumes when a unit
// finishes a zone. Only consume_on_completion mappings count toward
// build-readiness requirements and completion consumption.
type ZoneBomMapping struct {
	ID                  int       `gorm:"primary_key" json:"id"`
	BusinessId          string    `gorm:"size:64;not null;uniqueIndex:uniq_zone_car_bom,priority:1" json:"business_id"`
	ZoneCode            string    `gorm:"size:100;not null;uniqueIndex:uniq_zone_car_bom,priority:2" json:"zone_code" binding:"required"`
	CarCode             string    `gorm:"size:100;not null;index;uniqueIndex:uniq_zone_car_bom,priority:3" json:"car_code" binding:"required"`
	BomCode             string    `gorm:"size:100;not null;uniqueIndex:uniq_zone_car_bom,priority:4" json:"bom_code" binding:"required"`
	ConsumeOnCompletion bool      `gorm:"not null;default:false" json:"consume_on_completion"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewZoneBomMapping struct {
	ZoneCode            string `json:"zone_code" binding:"required"`
	CarCode             string `json:"car_code" binding:"required"`
	BomCode             string `json:"bom_code" binding:"required"`
	ConsumeOnCompletion bool   `json:"consume_on_completion"`
}

func (input *NewZoneBomMapping) validate(ctx context.Context, businessId string, id int) error {
	count, err := utils.ResourceCountWhere[Zone](ctx, businessId, "code = ?", input.ZoneCode)
	if err != nil {
		return err
	}
	if count <= 0 {
		return errors.New("zone not found")
	}
	count, err = utils.ResourceCountWhere[CarType](ctx, businessId, "code = ?", input.CarCode)
	if err != nil {
		return err
	}
	if count <= 0 {
		return errors.New("car type not found")
	}
	count, err = utils.ResourceCountWhere[Bom](ctx, businessId, "code = ?", input.BomCode)
	if err != nil {
		return err
	}
	if count <= 0 {
		return errors.New("bom not found")
	}
	// the triple is the mapping's identity
	count, err = utils.ResourceCountWhere[ZoneBomMapping](ctx, businessId,
		"zone_code = ? AND car_code = ? AND bom_code = ? AND NOT id = ?",
		input.ZoneCode, input.CarCode, input.BomCode, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate zone bom mapping")
	}
	return nil
}

func CreateZoneBomMapping(ctx context.Context, input *NewZoneBomMapping) (*ZoneBomMapping, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	mapping := ZoneBomMapping{
		BusinessId:          businessId,
		ZoneCode:            input.ZoneCode,
		CarCode:             input.CarCode,
		BomCode:             input.BomCode,
		ConsumeOnCompletion: input.ConsumeOnCompletion,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func UpdateZoneBomMapping(ctx context.Context, id int, input *NewZoneBomMapping) (*ZoneBomMapping, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	mapping, err := utils.FetchModel[ZoneBomMapping](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&mapping).Updates(map[string]interface{}{
		"ZoneCode":            input.ZoneCode,
		"CarCode":             input.CarCode,
		"BomCode":             input.BomCode,
		"ConsumeOnCompletion": input.ConsumeOnCompletion,
	}).Error
	if err != nil {
		return nil, err
	}

	return mapping, nil
}

func DeleteZoneBomMapping(ctx context.Context, id int) (*ZoneBomMapping, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[ZoneBomMapping](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetZoneBomMapping(ctx context.Context, id int) (*ZoneBomMapping, error) {
	return GetResource[ZoneBomMapping](ctx, id)
}

func ListZoneBomMapping(ctx context.Context, zoneCode *string, carCode *string) ([]*ZoneBomMapping, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*ZoneBomMapping

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if zoneCode != nil && len(*zoneCode) > 0 {
		dbCtx = dbCtx.Where("zone_code = ?", *zoneCode)
	}
	if carCode != nil && len(*carCode) > 0 {
		dbCtx = dbCtx.Where("car_code = ?", *carCode)
	}
	// db query
	err := dbCtx.Order("zone_code, car_code, bom_code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetQualifyingMappings returns the car type's consume_on_completion mappings
// across all zones. The requirement resolver starts here.
func GetQualifyingMappings(ctx context.Context, businessId string, carCode string) ([]*ZoneBomMapping, error) {
	db := config.GetDB()
	var results []*ZoneBomMapping

	err := db.WithContext(ctx).
		Where("business_id = ? AND car_code = ? AND consume_on_completion = ?", businessId, carCode, true).
		Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetQualifyingZoneMappings narrows to one zone, for completion consumption.
func GetQualifyingZoneMappings(ctx context.Context, businessId string, zoneCode string, carCode string) ([]*ZoneBomMapping, error) {
	db := config.GetDB()
	var results []*ZoneBomMapping

	err := db.WithContext(ctx).
		Where("business_id = ? AND zone_code = ? AND car_code = ? AND consume_on_completion = ?", businessId, zoneCode, carCode, true).
		Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
