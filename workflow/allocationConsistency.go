package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
)

// AllocationGap is one (sku, location) where the raw layer and the
// allocation layer disagree.
type AllocationGap struct {
	Sku            string          `json:"sku"`
	Location       string          `json:"location"`
	RawQuantity    decimal.Decimal `json:"raw_quantity"`
	AllocatedTotal decimal.Decimal `json:"allocated_total"`
	Delta          decimal.Decimal `json:"delta"`
}

// ScanAllocationConsistency reports every spot where expected stock drifted
// from the allocation total. The write paths derive the raw layer inside the
// same transaction, so a non-empty result means raw rows were written
// directly or a partial failure slipped through. Nothing is repaired here;
// the rebuild adopts or re-syncs whatever this finds.
func ScanAllocationConsistency(ctx context.Context) ([]*AllocationGap, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var gaps []*AllocationGap
	err := db.WithContext(ctx).Raw(`
		SELECT
			ri.sku AS sku,
			ri.location AS location,
			ri.quantity AS raw_quantity,
			COALESCE(ba.total_allocated, 0) AS allocated_total,
			ri.quantity - COALESCE(ba.total_allocated, 0) AS delta
		FROM raw_inventories ri
		LEFT JOIN batch_allocations ba
			ON ba.business_id = ri.business_id AND ba.sku = ri.sku AND ba.location = ri.location
		WHERE ri.business_id = ? AND ri.quantity <> COALESCE(ba.total_allocated, 0)

		UNION

		SELECT
			ba.sku AS sku,
			ba.location AS location,
			0 AS raw_quantity,
			ba.total_allocated AS allocated_total,
			-ba.total_allocated AS delta
		FROM batch_allocations ba
		LEFT JOIN raw_inventories ri
			ON ri.business_id = ba.business_id AND ri.sku = ba.sku AND ri.location = ba.location
		WHERE ba.business_id = ? AND ri.id IS NULL AND ba.total_allocated <> 0

		ORDER BY sku, location`, businessId, businessId).Scan(&gaps).Error
	if err != nil {
		return nil, err
	}
	return gaps, nil
}
