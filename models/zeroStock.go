package models

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ZeroStockFailure struct {
	AllocationId int    `json:"allocation_id"`
	Sku          string `json:"sku"`
	Location     string `json:"location"`
	Error        string `json:"error"`
}

// ZeroStockReport is the outcome of a zeroing fan out. Failures are per
// record; the records that did zero stay zeroed regardless.
type ZeroStockReport struct {
	BatchNo             string             `json:"batch_no"`
	RecordsAffected     int                `json:"records_affected"`
	TotalQuantityZeroed decimal.Decimal    `json:"total_quantity_zeroed"`
	Failures            []ZeroStockFailure `json:"failures,omitempty"`
}

type zeroResult struct {
	id       int
	sku      string
	location string
	removed  decimal.Decimal
	err      error
}

// ZeroStockForBatch wipes one batch's key from every allocation record that
// holds it, mirroring each removal onto the raw layer. Records are worked
// in parallel, one transaction each, so one bad record cannot roll back the
// rest.
func ZeroStockForBatch(ctx context.Context, batchNo string) (*ZeroStockReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.BusinessLock(ctx, businessId, "stockLock", "zeroStock.go", "ZeroStockForBatch"); err != nil {
		return nil, err
	}

	ids, err := findAllocationRecordIdsForBatch(ctx, businessId, batchNo)
	if err != nil {
		return nil, err
	}

	report := runZeroFanOut(ctx, businessId, ids, func(ctx context.Context, tx *gorm.DB, record *BatchAllocation) (decimal.Decimal, error) {
		return zeroBatchKeyFor(ctx, tx, record, batchNo)
	})
	report.BatchNo = batchNo

	finishZeroReport(ctx, businessId, report)
	return report, nil
}

// ZeroUnassignedStock wipes the unassigned pool across all records.
func ZeroUnassignedStock(ctx context.Context) (*ZeroStockReport, error) {
	return ZeroStockForBatch(ctx, UnassignedPool)
}

// ZeroAllStock clears every allocation record completely and zeroes the raw
// rows left behind. This is the reset path, only reachable from operator
// tooling.
func ZeroAllStock(ctx context.Context) (*ZeroStockReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.BusinessLock(ctx, businessId, "stockLock", "zeroStock.go", "ZeroAllStock"); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&BatchAllocation{}).
		Where("business_id = ? AND total_allocated > 0", businessId).
		Order("id").Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}

	report := runZeroFanOut(ctx, businessId, ids, zeroWholeRecordTx)

	// raw rows with no allocation record behind them go to zero as well
	err = db.WithContext(ctx).Exec(`
		UPDATE raw_inventories ri
		LEFT JOIN batch_allocations ba
		  ON ba.business_id = ri.business_id AND ba.sku = ri.sku AND ba.location = ri.location AND ba.total_allocated > 0
		SET ri.quantity = 0
		WHERE ri.business_id = ? AND ba.id IS NULL AND ri.quantity <> 0`, businessId).Error
	if err != nil {
		report.Failures = append(report.Failures, ZeroStockFailure{Error: "raw sweep failed: " + err.Error()})
	}

	finishZeroReport(ctx, businessId, report)
	return report, nil
}

// runZeroFanOut drives the worker pool. Each record gets its own
// transaction: lock the row, let zeroFn take what it takes, write the
// ledger entry, commit.
func runZeroFanOut(ctx context.Context, businessId string, ids []int, zeroFn func(ctx context.Context, tx *gorm.DB, record *BatchAllocation) (decimal.Decimal, error)) *ZeroStockReport {
	report := &ZeroStockReport{TotalQuantityZeroed: decimal.Zero}
	if len(ids) == 0 {
		return report
	}

	workerCount := config.ZeroStockWorkerCount()
	if workerCount > len(ids) {
		workerCount = len(ids)
	}

	jobs := make(chan int)
	results := make(chan zeroResult, len(ids))
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				results <- zeroOneRecord(ctx, businessId, id, zeroFn)
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(results)

	for result := range results {
		if result.err != nil {
			report.Failures = append(report.Failures, ZeroStockFailure{
				AllocationId: result.id,
				Sku:          result.sku,
				Location:     result.location,
				Error:        result.err.Error(),
			})
			continue
		}
		if result.removed.IsPositive() {
			report.RecordsAffected++
			report.TotalQuantityZeroed = report.TotalQuantityZeroed.Add(result.removed)
		}
	}
	return report
}

func zeroOneRecord(ctx context.Context, businessId string, id int, zeroFn func(ctx context.Context, tx *gorm.DB, record *BatchAllocation) (decimal.Decimal, error)) zeroResult {
	db := config.GetDB()
	tx := db.Begin()

	var record BatchAllocation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).First(&record).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zeroResult{id: id}
		}
		return zeroResult{id: id, err: err}
	}
	if record.Allocations == nil {
		record.Allocations = AllocationMap{}
	}

	removed, err := zeroFn(ctx, tx, &record)
	if err != nil {
		tx.Rollback()
		return zeroResult{id: id, sku: record.Sku, location: record.Location, err: err}
	}
	if err := tx.Commit().Error; err != nil {
		return zeroResult{id: id, sku: record.Sku, location: record.Location, err: err}
	}
	return zeroResult{id: id, sku: record.Sku, location: record.Location, removed: removed}
}

// zeroBatchKeyFor removes one batch's key from an already locked record.
func zeroBatchKeyFor(ctx context.Context, tx *gorm.DB, record *BatchAllocation, batchNo string) (decimal.Decimal, error) {
	removed := record.Allocations[batchNo]
	if !removed.IsPositive() {
		return decimal.Zero, nil
	}
	delete(record.Allocations, batchNo)
	if err := saveAllocationMap(tx, record); err != nil {
		return decimal.Zero, err
	}

	raw, _, err := firstOrCreateRawInventory(tx, record.BusinessId, record.Sku, record.Location)
	if err != nil {
		return decimal.Zero, err
	}
	if err := floorSubtractRawQuantity(tx, raw.ID, removed); err != nil {
		return decimal.Zero, err
	}

	entry := &InventoryTransaction{
		BusinessId:    record.BusinessId,
		Sku:           record.Sku,
		Location:      record.Location,
		BatchNo:       batchNo,
		Type:          InventoryTransactionTypeZero,
		Quantity:      removed.Neg(),
		Reason:        "stock zeroed for " + batchNo,
		ReferenceType: ProductionReferenceTypeStockZeroed,
	}
	return removed, appendLedgerEntry(ctx, tx, entry)
}

// zeroWholeRecordTx clears every key on an already locked record.
func zeroWholeRecordTx(ctx context.Context, tx *gorm.DB, record *BatchAllocation) (decimal.Decimal, error) {
	removed := record.Allocations.Total()
	if !removed.IsPositive() {
		return decimal.Zero, nil
	}
	record.Allocations = AllocationMap{}
	if err := saveAllocationMap(tx, record); err != nil {
		return decimal.Zero, err
	}

	raw, _, err := firstOrCreateRawInventory(tx, record.BusinessId, record.Sku, record.Location)
	if err != nil {
		return decimal.Zero, err
	}
	if err := tx.Exec("UPDATE raw_inventories SET quantity = 0 WHERE id = ?", raw.ID).Error; err != nil {
		return decimal.Zero, err
	}

	entry := &InventoryTransaction{
		BusinessId:    record.BusinessId,
		Sku:           record.Sku,
		Location:      record.Location,
		Type:          InventoryTransactionTypeZero,
		Quantity:      removed.Neg(),
		Reason:        "full inventory reset",
		ReferenceType: ProductionReferenceTypeStockZeroed,
	}
	return removed, appendLedgerEntry(ctx, tx, entry)
}

// finishZeroReport records the outcome on the outbox and the log. The event
// only goes out when something actually moved.
func finishZeroReport(ctx context.Context, businessId string, report *ZeroStockReport) {
	log := config.GetLogger()

	if report.RecordsAffected > 0 {
		db := config.GetDB()
		tx := db.Begin()
		err := PublishToProduction(ctx, tx, businessId, time.Now(), 0,
			ProductionReferenceTypeStockZeroed, report, nil, PubSubMessageActionCreate)
		if err != nil {
			tx.Rollback()
			config.LogError(log, "models", "finishZeroReport", "publish zero stock event", report, err)
		} else if err := tx.Commit().Error; err != nil {
			config.LogError(log, "models", "finishZeroReport", "commit zero stock event", report, err)
		}
	}

	fields := logrus.Fields{
		"business_id":      businessId,
		"batch_no":         report.BatchNo,
		"records_affected": report.RecordsAffected,
		"quantity_zeroed":  report.TotalQuantityZeroed.String(),
		"failures":         len(report.Failures),
	}
	if len(report.Failures) > 0 {
		log.WithFields(fields).Warn("zero stock finished with failures")
		return
	}
	log.WithFields(fields).Info("zero stock finished")
}
