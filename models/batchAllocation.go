package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnassignedPool is the reserved batch key for stock that has been received
// but not earmarked for any batch yet.
const UnassignedPool = "unassigned"

// AllocationMap maps a batch number (or the unassigned pool) to the
// quantity held for it at one sku and location.
type AllocationMap map[string]decimal.Decimal

func (m AllocationMap) Total() decimal.Decimal {
	total := decimal.Zero
	for _, qty := range m {
		total = total.Add(qty)
	}
	return total
}

func (m AllocationMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *AllocationMap) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = AllocationMap{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("cannot scan %T into AllocationMap", value)
}

// BatchAllocation splits one (sku, location) stock record across batches.
// total_allocated is always recomputed from the full map on write, never
// adjusted incrementally, so it cannot drift from the map.
type BatchAllocation struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;uniqueIndex:uniq_alloc_sku_location,priority:1;not null" json:"business_id"`
	Sku            string          `gorm:"size:100;uniqueIndex:uniq_alloc_sku_location,priority:2;not null" json:"sku"`
	Location       string          `gorm:"size:100;uniqueIndex:uniq_alloc_sku_location,priority:3;not null" json:"location"`
	Allocations    AllocationMap   `gorm:"type:json" json:"allocations"`
	TotalAllocated decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_allocated"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func firstOrCreateBatchAllocation(tx *gorm.DB, businessId string, sku string, location string) (*BatchAllocation, bool, error) {
	var record BatchAllocation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND sku = ? AND location = ?", businessId, sku, location).
		First(&record).Error
	if err == nil {
		if record.Allocations == nil {
			record.Allocations = AllocationMap{}
		}
		return &record, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	record = BatchAllocation{
		BusinessId:     businessId,
		Sku:            sku,
		Location:       location,
		Allocations:    AllocationMap{},
		TotalAllocated: decimal.Zero,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func saveAllocationMap(tx *gorm.DB, record *BatchAllocation) error {
	record.TotalAllocated = record.Allocations.Total()
	return tx.Model(record).Updates(map[string]interface{}{
		"Allocations":    record.Allocations,
		"TotalAllocated": record.TotalAllocated,
	}).Error
}

// addToAllocationTx grows a batch's share at one location and mirrors the
// movement onto the raw layer in the same transaction.
func addToAllocationTx(tx *gorm.DB, businessId string, sku string, location string, batchNo string, qty decimal.Decimal) (*BatchAllocation, error) {
	record, _, err := firstOrCreateBatchAllocation(tx, businessId, sku, location)
	if err != nil {
		return nil, err
	}

	record.Allocations[batchNo] = record.Allocations[batchNo].Add(qty)
	if err := saveAllocationMap(tx, record); err != nil {
		return nil, err
	}

	raw, _, err := firstOrCreateRawInventory(tx, businessId, sku, location)
	if err != nil {
		return nil, err
	}
	return record, adjustRawQuantity(tx, raw.ID, qty)
}

// removeFromAllocationTx shrinks a batch's share at one location. In clamped
// mode a missing record or key is a no-op and an oversized removal takes
// what is there; strict mode turns both into errors instead.
func removeFromAllocationTx(tx *gorm.DB, businessId string, sku string, location string, batchNo string, qty decimal.Decimal, strict bool) (decimal.Decimal, *BatchAllocation, error) {
	var record BatchAllocation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND sku = ? AND location = ?", businessId, sku, location).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if strict {
			return decimal.Zero, nil, utils.ErrorRecordNotFound
		}
		return decimal.Zero, nil, nil
	}
	if err != nil {
		return decimal.Zero, nil, err
	}
	if record.Allocations == nil {
		record.Allocations = AllocationMap{}
	}

	available := record.Allocations[batchNo]
	if !available.IsPositive() {
		if strict {
			return decimal.Zero, nil, utils.ErrorRecordNotFound
		}
		return decimal.Zero, &record, nil
	}
	if strict && available.LessThan(qty) {
		return decimal.Zero, nil, utils.ErrInsufficientAllocation
	}

	removed := qty
	if available.LessThan(qty) {
		removed = available
	}
	remaining := available.Sub(removed)
	if remaining.IsPositive() {
		record.Allocations[batchNo] = remaining
	} else {
		delete(record.Allocations, batchNo)
	}
	if err := saveAllocationMap(tx, &record); err != nil {
		return decimal.Zero, nil, err
	}

	raw, _, err := firstOrCreateRawInventory(tx, businessId, sku, location)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return removed, &record, floorSubtractRawQuantity(tx, raw.ID, removed)
}

// consumeFromLocationTx deducts up to qty of one sku at one location,
// draining the batch's share before touching the unassigned pool. The final
// take is also clamped to what the allocation map actually holds, so the
// two layers stay aligned even when the raw row had drifted above them.
func consumeFromLocationTx(tx *gorm.DB, businessId string, sku string, location string, batchNo string, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var record BatchAllocation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND sku = ? AND location = ?", businessId, sku, location).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if record.Allocations == nil {
		record.Allocations = AllocationMap{}
	}

	fromBatch := record.Allocations[batchNo]
	if fromBatch.GreaterThan(qty) {
		fromBatch = qty
	}
	if fromBatch.IsNegative() {
		fromBatch = decimal.Zero
	}

	fromPool := decimal.Zero
	if batchNo != UnassignedPool {
		fromPool = record.Allocations[UnassignedPool]
		if needLeft := qty.Sub(fromBatch); fromPool.GreaterThan(needLeft) {
			fromPool = needLeft
		}
		if fromPool.IsNegative() {
			fromPool = decimal.Zero
		}
	}

	take := fromBatch.Add(fromPool)
	if !take.IsPositive() {
		return decimal.Zero, decimal.Zero, nil
	}

	if fromBatch.IsPositive() {
		left := record.Allocations[batchNo].Sub(fromBatch)
		if left.IsPositive() {
			record.Allocations[batchNo] = left
		} else {
			delete(record.Allocations, batchNo)
		}
	}
	if fromPool.IsPositive() {
		left := record.Allocations[UnassignedPool].Sub(fromPool)
		if left.IsPositive() {
			record.Allocations[UnassignedPool] = left
		} else {
			delete(record.Allocations, UnassignedPool)
		}
	}
	if err := saveAllocationMap(tx, &record); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	raw, _, err := firstOrCreateRawInventory(tx, businessId, sku, location)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return fromBatch, fromPool, floorSubtractRawQuantity(tx, raw.ID, take)
}

type NewStockReceipt struct {
	Sku      string          `json:"sku" binding:"required"`
	Location string          `json:"location" binding:"required"`
	BatchNo  string          `json:"batch_no"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Reason   string          `json:"reason"`
}

// ReceiveStock books incoming quantity against a batch, or against the
// unassigned pool when no batch number is given.
func ReceiveStock(ctx context.Context, input *NewStockReceipt) (*BatchAllocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Quantity.IsPositive() {
		return nil, errors.New("quantity must be positive")
	}

	count, err := utils.ResourceCountWhere[Item](ctx, businessId, "sku = ?", input.Sku)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.New("item not found: " + input.Sku)
	}

	batchNo := input.BatchNo
	if batchNo == "" {
		batchNo = UnassignedPool
	}
	if batchNo != UnassignedPool {
		count, err := utils.ResourceCountWhere[Batch](ctx, businessId, "batch_no = ?", batchNo)
		if err != nil {
			return nil, err
		}
		if count <= 0 {
			return nil, errors.New("batch not found: " + batchNo)
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	record, err := addToAllocationTx(tx, businessId, input.Sku, input.Location, batchNo, input.Quantity)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	err = appendLedgerEntry(ctx, tx, &InventoryTransaction{
		BusinessId: businessId,
		Sku:        input.Sku,
		Location:   input.Location,
		BatchNo:    batchNo,
		Type:       InventoryTransactionTypeReceipt,
		Quantity:   input.Quantity,
		Reason:     input.Reason,
	})
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	return record, tx.Commit().Error
}

type AllocationRemoval struct {
	Sku      string          `json:"sku" binding:"required"`
	Location string          `json:"location" binding:"required"`
	BatchNo  string          `json:"batch_no" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Reason   string          `json:"reason"`
}

// RemoveFromBatchAllocation takes quantity off a batch's share, clamped to
// what is actually held. Returns the quantity that was removed.
func RemoveFromBatchAllocation(ctx context.Context, input *AllocationRemoval) (decimal.Decimal, error) {
	return removeFromBatchAllocation(ctx, input, false)
}

// RemoveFromBatchAllocationStrict is the variant that fails instead of
// clamping: a missing record or key returns not found, and an oversized
// removal returns utils.ErrInsufficientAllocation.
func RemoveFromBatchAllocationStrict(ctx context.Context, input *AllocationRemoval) (decimal.Decimal, error) {
	return removeFromBatchAllocation(ctx, input, true)
}

func removeFromBatchAllocation(ctx context.Context, input *AllocationRemoval, strict bool) (decimal.Decimal, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return decimal.Zero, errors.New("business id is required")
	}
	if !input.Quantity.IsPositive() {
		return decimal.Zero, errors.New("quantity must be positive")
	}

	db := config.GetDB()
	tx := db.Begin()

	removed, _, err := removeFromAllocationTx(tx, businessId, input.Sku, input.Location, input.BatchNo, input.Quantity, strict)
	if err != nil {
		tx.Rollback()
		return decimal.Zero, err
	}
	if !removed.IsPositive() {
		tx.Rollback()
		return decimal.Zero, nil
	}

	err = appendLedgerEntry(ctx, tx, &InventoryTransaction{
		BusinessId: businessId,
		Sku:        input.Sku,
		Location:   input.Location,
		BatchNo:    input.BatchNo,
		Type:       InventoryTransactionTypeAdjustment,
		Quantity:   removed.Neg(),
		Reason:     input.Reason,
	})
	if err != nil {
		tx.Rollback()
		return decimal.Zero, err
	}

	return removed, tx.Commit().Error
}

type AllocationTransfer struct {
	Sku         string          `json:"sku" binding:"required"`
	Location    string          `json:"location" binding:"required"`
	FromBatchNo string          `json:"from_batch_no" binding:"required"`
	ToBatchNo   string          `json:"to_batch_no" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	Reason      string          `json:"reason"`
}

type allocationMovement struct {
	Sku         string          `json:"sku"`
	Location    string          `json:"location"`
	FromBatchNo string          `json:"from_batch_no"`
	ToBatchNo   string          `json:"to_batch_no"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// TransferAllocation moves quantity between two batch keys at the same sku
// and location. The source side is strict, so a transfer can never move
// more than the source batch holds.
func TransferAllocation(ctx context.Context, input *AllocationTransfer) (*BatchAllocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Quantity.IsPositive() {
		return nil, errors.New("quantity must be positive")
	}
	if input.FromBatchNo == input.ToBatchNo {
		return nil, errors.New("source and target batch are the same")
	}
	if input.ToBatchNo != UnassignedPool {
		count, err := utils.ResourceCountWhere[Batch](ctx, businessId, "batch_no = ?", input.ToBatchNo)
		if err != nil {
			return nil, err
		}
		if count <= 0 {
			return nil, errors.New("batch not found: " + input.ToBatchNo)
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	removed, _, err := removeFromAllocationTx(tx, businessId, input.Sku, input.Location, input.FromBatchNo, input.Quantity, true)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// the raw layer nets out to zero across the two legs
	record, err := addToAllocationTx(tx, businessId, input.Sku, input.Location, input.ToBatchNo, removed)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	entries := []*InventoryTransaction{
		{
			BusinessId: businessId,
			Sku:        input.Sku,
			Location:   input.Location,
			BatchNo:    input.FromBatchNo,
			Type:       InventoryTransactionTypeTransfer,
			Quantity:   removed.Neg(),
			Reason:     input.Reason,
		},
		{
			BusinessId: businessId,
			Sku:        input.Sku,
			Location:   input.Location,
			BatchNo:    input.ToBatchNo,
			Type:       InventoryTransactionTypeTransfer,
			Quantity:   removed,
			Reason:     input.Reason,
		},
	}
	for _, entry := range entries {
		if err := appendLedgerEntry(ctx, tx, entry); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	movement := allocationMovement{
		Sku:         input.Sku,
		Location:    input.Location,
		FromBatchNo: input.FromBatchNo,
		ToBatchNo:   input.ToBatchNo,
		Quantity:    removed,
	}
	if err := PublishToProduction(ctx, tx, businessId, time.Now(), record.ID,
		ProductionReferenceTypeAllocationMoved, &movement, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return record, tx.Commit().Error
}

// jsonPathForBatch builds the JSON path of a batch key inside the
// allocations column, escaping characters that would break the path.
func jsonPathForBatch(batchNo string) string {
	escaped := strings.ReplaceAll(batchNo, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `$."` + escaped + `"`
}

func findAllocationRecordIdsForBatch(ctx context.Context, businessId string, batchNo string) ([]int, error) {
	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&BatchAllocation{}).
		Where("business_id = ? AND JSON_CONTAINS_PATH(allocations, 'one', ?)", businessId, jsonPathForBatch(batchNo)).
		Order("id").Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetBatchAllocatedQuantities sums one batch's share per sku across every
// location it is spread over.
func GetBatchAllocatedQuantities(ctx context.Context, businessId string, batchNo string) (map[string]decimal.Decimal, error) {
	db := config.GetDB()
	var records []*BatchAllocation
	err := db.WithContext(ctx).
		Where("business_id = ? AND JSON_CONTAINS_PATH(allocations, 'one', ?)", businessId, jsonPathForBatch(batchNo)).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(records))
	for _, record := range records {
		qty := record.Allocations[batchNo]
		if qty.IsPositive() {
			result[record.Sku] = result[record.Sku].Add(qty)
		}
	}
	return result, nil
}

func GetBatchAllocation(ctx context.Context, sku string, location string) (*BatchAllocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var record BatchAllocation
	err := db.WithContext(ctx).
		Where("business_id = ? AND sku = ? AND location = ?", businessId, sku, location).
		First(&record).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &record, nil
}

func ListBatchAllocations(ctx context.Context, sku *string, location *string) ([]*BatchAllocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*BatchAllocation

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if sku != nil && *sku != "" {
		dbCtx = dbCtx.Where("sku = ?", *sku)
	}
	if location != nil && *location != "" {
		dbCtx = dbCtx.Where("location = ?", *location)
	}
	// db query
	err := dbCtx.Order("sku, location").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SyncExpectedFromBatchAllocations rebuilds the raw layer from the
// allocation layer. Every record's total is recomputed from its map and the
// matching raw row overwritten with it, then raw rows with no allocation
// record behind them are zeroed. Returns the number of records synced.
func SyncExpectedFromBatchAllocations(ctx context.Context) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}

	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&BatchAllocation{}).
		Where("business_id = ?", businessId).Order("id").Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, id := range ids {
		tx := db.Begin()

		var record BatchAllocation
		err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&record).Error
		if err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return synced, err
		}

		total := record.Allocations.Total()
		if !total.Equal(record.TotalAllocated) {
			err = tx.WithContext(ctx).Model(&record).Updates(map[string]interface{}{
				"TotalAllocated": total,
			}).Error
			if err != nil {
				tx.Rollback()
				return synced, err
			}
		}

		raw, _, err := firstOrCreateRawInventory(tx, businessId, record.Sku, record.Location)
		if err != nil {
			tx.Rollback()
			return synced, err
		}
		err = tx.Exec("UPDATE raw_inventories SET quantity = ? WHERE id = ?", total, raw.ID).Error
		if err != nil {
			tx.Rollback()
			return synced, err
		}
		if err := tx.Commit().Error; err != nil {
			return synced, err
		}
		synced++
	}

	// raw rows with no allocation record are stale, zero them
	err = db.WithContext(ctx).Exec(`
		UPDATE raw_inventories ri
		LEFT JOIN batch_allocations ba
		  ON ba.business_id = ri.business_id AND ba.sku = ri.sku AND ba.location = ri.location
		SET ri.quantity = 0
		WHERE ri.business_id = ? AND ba.id IS NULL AND ri.quantity <> 0`, businessId).Error
	if err != nil {
		return synced, err
	}
	return synced, nil
}

// AdoptOrphanRawRows books raw stock with no allocation record behind it
// into the unassigned pool. Recovery path for stock that predates allocation
// tracking or lost its record to manual surgery; run it before a sync, which
// would otherwise zero those rows.
func AdoptOrphanRawRows(ctx context.Context) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}

	db := config.GetDB()
	var orphans []*RawInventory
	err := db.WithContext(ctx).Raw(`
		SELECT ri.* FROM raw_inventories ri
		LEFT JOIN batch_allocations ba
		  ON ba.business_id = ri.business_id AND ba.sku = ri.sku AND ba.location = ri.location
		WHERE ri.business_id = ? AND ba.id IS NULL AND ri.quantity > 0
		ORDER BY ri.id`, businessId).Scan(&orphans).Error
	if err != nil {
		return 0, err
	}

	adopted := 0
	for _, orphan := range orphans {
		tx := db.Begin()

		// lock order matches the receipt path, allocation record before raw row
		record, _, err := firstOrCreateBatchAllocation(tx, businessId, orphan.Sku, orphan.Location)
		if err != nil {
			tx.Rollback()
			return adopted, err
		}
		var raw RawInventory
		err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orphan.ID).First(&raw).Error
		if err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return adopted, err
		}

		// someone may have written the record since the scan, absorb only
		// what the map does not explain yet
		delta := raw.Quantity.Sub(record.Allocations.Total())
		if !delta.IsPositive() {
			tx.Rollback()
			continue
		}
		record.Allocations[UnassignedPool] = record.Allocations[UnassignedPool].Add(delta)
		if err := saveAllocationMap(tx, record); err != nil {
			tx.Rollback()
			return adopted, err
		}
		err = appendLedgerEntry(ctx, tx, &InventoryTransaction{
			BusinessId: businessId,
			Sku:        raw.Sku,
			Location:   raw.Location,
			BatchNo:    UnassignedPool,
			Type:       InventoryTransactionTypeAdjustment,
			Quantity:   delta,
			Reason:     "orphan raw adoption",
		})
		if err != nil {
			tx.Rollback()
			return adopted, err
		}
		if err := tx.Commit().Error; err != nil {
			return adopted, err
		}
		adopted++
	}
	return adopted, nil
}

type NewPhysicalCount struct {
	Sku             string          `json:"sku" binding:"required"`
	Location        string          `json:"location" binding:"required"`
	CountedQuantity decimal.Decimal `json:"counted_quantity"`
	Reason          string          `json:"reason"`
}

type PhysicalCountResult struct {
	Sku              string          `json:"sku"`
	Location         string          `json:"location"`
	PreviousQuantity decimal.Decimal `json:"previous_quantity"`
	CountedQuantity  decimal.Decimal `json:"counted_quantity"`
	Delta            decimal.Decimal `json:"delta"`
	PoolAdjusted     decimal.Decimal `json:"pool_adjusted"`
	ResidualGap      decimal.Decimal `json:"residual_gap"`
}

// RecordPhysicalCount reconciles a counted quantity against the books. The
// raw row is overwritten with the count, a surplus is booked into the
// unassigned pool, and a shortfall drains the pool down to zero. Whatever
// the pool could not absorb stays as a gap between the two layers for the
// consistency scan to surface.
func RecordPhysicalCount(ctx context.Context, input *NewPhysicalCount) (*PhysicalCountResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.CountedQuantity.IsNegative() {
		return nil, errors.New("counted quantity cannot be negative")
	}
	count, err := utils.ResourceCountWhere[Item](ctx, businessId, "sku = ?", input.Sku)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.New("item not found: " + input.Sku)
	}

	db := config.GetDB()
	tx := db.Begin()

	// lock order matches the receipt path, allocation record before raw row
	record, _, err := firstOrCreateBatchAllocation(tx, businessId, input.Sku, input.Location)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	raw, _, err := firstOrCreateRawInventory(tx, businessId, input.Sku, input.Location)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	result := &PhysicalCountResult{
		Sku:              input.Sku,
		Location:         input.Location,
		PreviousQuantity: raw.Quantity,
		CountedQuantity:  input.CountedQuantity,
		Delta:            input.CountedQuantity.Sub(raw.Quantity),
		PoolAdjusted:     decimal.Zero,
		ResidualGap:      decimal.Zero,
	}
	if result.Delta.IsZero() {
		tx.Rollback()
		return result, nil
	}

	if result.Delta.IsPositive() {
		record.Allocations[UnassignedPool] = record.Allocations[UnassignedPool].Add(result.Delta)
		result.PoolAdjusted = result.Delta
	} else {
		need := result.Delta.Neg()
		pool := record.Allocations[UnassignedPool]
		taken := need
		if pool.LessThan(need) {
			taken = pool
		}
		if taken.IsPositive() {
			left := pool.Sub(taken)
			if left.IsPositive() {
				record.Allocations[UnassignedPool] = left
			} else {
				delete(record.Allocations, UnassignedPool)
			}
			result.PoolAdjusted = taken.Neg()
		}
		result.ResidualGap = need.Sub(taken)
	}

	if err := saveAllocationMap(tx, record); err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.Exec("UPDATE raw_inventories SET quantity = ? WHERE id = ?", input.CountedQuantity, raw.ID).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	err = appendLedgerEntry(ctx, tx, &InventoryTransaction{
		BusinessId: businessId,
		Sku:        input.Sku,
		Location:   input.Location,
		BatchNo:    UnassignedPool,
		Type:       InventoryTransactionTypeCount,
		Quantity:   result.Delta,
		Reason:     input.Reason,
	})
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if result.ResidualGap.IsPositive() {
		config.GetLogger().WithFields(logrus.Fields{
			"business_id": businessId,
			"sku":         input.Sku,
			"location":    input.Location,
			"gap":         result.ResidualGap.String(),
		}).Warn("count shortfall exceeds unassigned pool, batch allocations now exceed counted stock")
	}
	return result, nil
}
