package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// a Bom is a recipe, not an inventory record
type Bom struct {
	ID         int            `gorm:"primary_key" json:"id"`
	BusinessId string         `gorm:"index;not null" json:"business_id"`
	Code       string         `gorm:"size:100;index;not null" json:"code" binding:"required"`
	Name       string         `gorm:"size:255;not null" json:"name" binding:"required"`
	IsActive   *bool          `gorm:"not null;default:true" json:"is_active"`
	Components []BomComponent `gorm:"foreignKey:BomId" json:"components"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// component order is insertion order, id ascending
type BomComponent struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	BomId      int             `gorm:"index;not null" json:"bom_id"`
	Sku        string          `gorm:"size:100;index;not null" json:"sku"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
}

type NewBom struct {
	Code       string            `json:"code" binding:"required"`
	Name       string            `json:"name" binding:"required"`
	Components []NewBomComponent `json:"components" binding:"required,dive"`
}

type NewBomComponent struct {
	Sku      string          `json:"sku" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
}

func (input *NewBom) validate(ctx context.Context, businessId string, id int) error {
	// code
	if err := utils.ValidateUnique[Bom](ctx, businessId, "code", input.Code, id); err != nil {
		return err
	}
	if len(input.Components) == 0 {
		return errors.New("bom needs at least one component")
	}
	seen := make(map[string]bool, len(input.Components))
	for _, component := range input.Components {
		if !component.Quantity.IsPositive() {
			return errors.New("component quantity must be positive")
		}
		if seen[component.Sku] {
			return errors.New("duplicate component sku")
		}
		seen[component.Sku] = true
		count, err := utils.ResourceCountWhere[Item](ctx, businessId, "sku = ?", component.Sku)
		if err != nil {
			return err
		}
		if count <= 0 {
			return errors.New("component item not found: " + component.Sku)
		}
	}
	return nil
}

func CreateBom(ctx context.Context, input *NewBom) (*Bom, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	bom := Bom{
		BusinessId: businessId,
		Code:       input.Code,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}
	for _, component := range input.Components {
		bom.Components = append(bom.Components, BomComponent{
			BusinessId: businessId,
			Sku:        component.Sku,
			Quantity:   component.Quantity,
		})
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&bom).Error
	if err != nil {
		return nil, err
	}
	return &bom, nil
}

func UpdateBom(ctx context.Context, id int, input *NewBom) (*Bom, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	bom, err := utils.FetchModel[Bom](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// replace component rows wholesale, id order restarts with the new set
	db := config.GetDB()
	tx := db.Begin()
	err = tx.WithContext(ctx).Model(&bom).Updates(map[string]interface{}{
		"Code": input.Code,
		"Name": input.Name,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.WithContext(ctx).Where("business_id = ? AND bom_id = ?", businessId, id).Delete(&BomComponent{}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	components := make([]BomComponent, 0, len(input.Components))
	for _, component := range input.Components {
		components = append(components, BomComponent{
			BusinessId: businessId,
			BomId:      id,
			Sku:        component.Sku,
			Quantity:   component.Quantity,
		})
	}
	err = tx.WithContext(ctx).Create(&components).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// caching
	if err := RemoveRedisBoth(*bom); err != nil {
		tx.Rollback()
		return nil, err
	}

	bom.Components = components
	return bom, tx.Commit().Error
}

func DeleteBom(ctx context.Context, id int) (*Bom, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Bom](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if bom is used
	var count int64
	if err := db.WithContext(ctx).Model(&ZoneBomMapping{}).
		Where("business_id = ? AND bom_code = ?", businessId, result.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("bom is used by a zone mapping")
	}

	// db action
	tx := db.Begin()
	err = tx.WithContext(ctx).Where("business_id = ? AND bom_id = ?", businessId, id).Delete(&BomComponent{}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.WithContext(ctx).Delete(&result).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(*result); err != nil {
		tx.Rollback()
		return nil, err
	}
	return result, tx.Commit().Error
}

func GetBom(ctx context.Context, id int) (*Bom, error) {
	bom, err := GetResource[Bom](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Where("bom_id = ?", id).Order("id").Find(&bom.Components).Error
	if err != nil {
		return nil, err
	}
	return bom, nil
}

// GetBomsByCodes loads boms with their components, keyed by code.
// Codes absent from the result were not found; the caller decides whether that aborts.
func GetBomsByCodes(ctx context.Context, businessId string, codes []string) (map[string]*Bom, error) {

	results := make(map[string]*Bom, len(codes))
	if len(codes) == 0 {
		return results, nil
	}

	db := config.GetDB()
	var boms []*Bom
	err := db.WithContext(ctx).Where("business_id = ? AND code IN ?", businessId, codes).
		Preload("Components", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Find(&boms).Error
	if err != nil {
		return nil, err
	}
	for _, bom := range boms {
		results[bom.Code] = bom
	}
	return results, nil
}

func ListBom(ctx context.Context, keyword *string) ([]*Bom, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Bom

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

func ToggleActiveBom(ctx context.Context, id int, isActive bool) (*Bom, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Bom](ctx, businessId, id, isActive)
}
