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

// RawInventory is the on hand quantity of one sku at one location. Rows are
// derived from the allocation layer inside the same transaction that moves
// an allocation, so the two layers cannot drift within a single operation.
type RawInventory struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;uniqueIndex:uniq_sku_location,priority:1;not null" json:"business_id"`
	Sku        string          `gorm:"size:100;uniqueIndex:uniq_sku_location,priority:2;not null" json:"sku"`
	Location   string          `gorm:"size:100;uniqueIndex:uniq_sku_location,priority:3;not null" json:"location"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// firstOrCreateRawInventory returns the row for (sku, location) locked for
// update, creating a zero row when none exists yet.
func firstOrCreateRawInventory(tx *gorm.DB, businessId string, sku string, location string) (*RawInventory, bool, error) {
	var record RawInventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND sku = ? AND location = ?", businessId, sku, location).
		First(&record).Error
	if err == nil {
		return &record, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	record = RawInventory{
		BusinessId: businessId,
		Sku:        sku,
		Location:   location,
		Quantity:   decimal.Zero,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func adjustRawQuantity(tx *gorm.DB, id int, delta decimal.Decimal) error {
	return tx.Exec("UPDATE raw_inventories SET quantity = quantity + ? WHERE id = ?", delta, id).Error
}

// floorSubtractRawQuantity takes qty off the row but never below zero. The
// clamp absorbs drift a manual count may have introduced on the raw layer.
func floorSubtractRawQuantity(tx *gorm.DB, id int, qty decimal.Decimal) error {
	return tx.Exec("UPDATE raw_inventories SET quantity = GREATEST(quantity - ?, 0) WHERE id = ?", qty, id).Error
}

// scanStockRecordsForConsumption lists a sku's nonzero rows oldest first.
// The rows are deliberately read without locks. Every write path locks the
// allocation record before it touches the raw row, so locking raw rows here
// first would invert that order; the actual take is serialized and clamped
// on the allocation record instead.
func scanStockRecordsForConsumption(tx *gorm.DB, businessId string, sku string) ([]*RawInventory, error) {
	var records []*RawInventory
	err := tx.
		Where("business_id = ? AND sku = ? AND quantity > 0", businessId, sku).
		Order("id").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetAvailableQuantities sums each sku's stock across locations. Skus with
// no rows are simply absent from the map; callers treat that as zero.
func GetAvailableQuantities(ctx context.Context, businessId string, skus []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	db := config.GetDB()
	var rows []struct {
		Sku      string
		Quantity decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&RawInventory{}).
		Select("sku, COALESCE(SUM(quantity), 0) AS quantity").
		Where("business_id = ? AND sku IN ?", businessId, skus).
		Group("sku").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.Sku] = row.Quantity
	}
	return result, nil
}

func GetOnHandQuantity(ctx context.Context, businessId string, sku string, location string) (decimal.Decimal, error) {
	db := config.GetDB()
	var record RawInventory
	err := db.WithContext(ctx).
		Where("business_id = ? AND sku = ? AND location = ?", businessId, sku, location).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return record.Quantity, nil
}

func ListRawInventory(ctx context.Context, sku *string, location *string, includeZero bool) ([]*RawInventory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*RawInventory

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if sku != nil && *sku != "" {
		dbCtx = dbCtx.Where("sku = ?", *sku)
	}
	if location != nil && *location != "" {
		dbCtx = dbCtx.Where("location = ?", *location)
	}
	if !includeZero {
		dbCtx = dbCtx.Not("quantity = 0")
	}
	// db query
	err := dbCtx.Order("sku, location").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
