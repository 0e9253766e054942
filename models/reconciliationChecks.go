package models

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReconciliationSummary is the per-run result. The correlation id groups
// the report rows the run wrote.
type ReconciliationSummary struct {
	CorrelationId string `json:"correlation_id"`
	LayerGaps     int    `json:"layer_gaps"`
	MapTotalGaps  int    `json:"map_total_gaps"`
	LedgerGaps    int    `json:"ledger_gaps"`
}

func (s *ReconciliationSummary) TotalGaps() int {
	return s.LayerGaps + s.MapTotalGaps + s.LedgerGaps
}

// RunReconciliationChecks writes mismatch rows to reconciliation_reports.
// This is intended to be run on a schedule (nightly) or via an admin trigger.
//
// Three checks, cheapest first:
//  1. STOCK_LAYERS: raw on hand vs allocation total per (sku, location).
//  2. ALLOCATION_TOTAL: stored total vs the sum of the allocation map.
//  3. LEDGER_ALLOCATION: active ledger net vs allocation map entry per
//     (sku, location, batch). Count clamps and clamped reversals land here.
func RunReconciliationChecks(ctx context.Context, businessId string) (*ReconciliationSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	logger := config.GetLogger()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()
	summary := &ReconciliationSummary{CorrelationId: cid}

	// 1) Raw layer vs allocation layer
	type layerGap struct {
		Sku            string
		Location       string
		RawQuantity    decimal.Decimal
		AllocatedTotal decimal.Decimal
	}
	var layerGaps []layerGap
	if err := db.WithContext(ctx).Raw(`
		SELECT
			ri.sku AS sku,
			ri.location AS location,
			ri.quantity AS raw_quantity,
			COALESCE(ba.total_allocated, 0) AS allocated_total
		FROM raw_inventories ri
		LEFT JOIN batch_allocations ba
			ON ba.business_id = ri.business_id AND ba.sku = ri.sku AND ba.location = ri.location
		WHERE ri.business_id = ? AND ri.quantity <> COALESCE(ba.total_allocated, 0)

		UNION

		SELECT
			ba.sku AS sku,
			ba.location AS location,
			0 AS raw_quantity,
			ba.total_allocated AS allocated_total
		FROM batch_allocations ba
		LEFT JOIN raw_inventories ri
			ON ri.business_id = ba.business_id AND ri.sku = ba.sku AND ri.location = ba.location
		WHERE ba.business_id = ? AND ri.id IS NULL AND ba.total_allocated <> 0
	`, businessId, businessId).Scan(&layerGaps).Error; err != nil {
		return summary, err
	}
	for _, g := range layerGaps {
		_ = db.WithContext(ctx).Create(&ReconciliationReport{
			BusinessId:    businessId,
			CheckType:     "STOCK_LAYERS",
			Sku:           g.Sku,
			Location:      g.Location,
			Details:       fmt.Sprintf("on_hand=%s != allocated_total=%s", g.RawQuantity.String(), g.AllocatedTotal.String()),
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
		summary.LayerGaps++
	}

	// 2) Stored total vs map sum (should never fire unless rows were edited
	// outside the write paths)
	var allocations []*BatchAllocation
	if err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Find(&allocations).Error; err != nil {
		return summary, err
	}
	for _, record := range allocations {
		mapTotal := record.Allocations.Total()
		if record.TotalAllocated.Equal(mapTotal) {
			continue
		}
		_ = db.WithContext(ctx).Create(&ReconciliationReport{
			BusinessId:    businessId,
			CheckType:     "ALLOCATION_TOTAL",
			Sku:           record.Sku,
			Location:      record.Location,
			Details:       fmt.Sprintf("total_allocated=%s != sum(allocations)=%s", record.TotalAllocated.String(), mapTotal.String()),
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
		summary.MapTotalGaps++
	}

	// 3) Active ledger net vs allocation map, per (sku, location, batch)
	type ledgerNet struct {
		Sku      string
		Location string
		BatchNo  string
		Quantity decimal.Decimal
	}
	var nets []ledgerNet
	if err := db.WithContext(ctx).Raw(`
		SELECT sku, location, batch_no, COALESCE(SUM(quantity), 0) AS quantity
		FROM inventory_transactions
		WHERE business_id = ? AND is_reversal = false AND reversed_by_transaction_id IS NULL
		GROUP BY sku, location, batch_no
	`, businessId).Scan(&nets).Error; err != nil {
		return summary, err
	}

	type ledgerKey struct{ Sku, Location, BatchNo string }
	expected := make(map[ledgerKey]decimal.Decimal)
	for _, record := range allocations {
		for batchNo, qty := range record.Allocations {
			expected[ledgerKey{record.Sku, record.Location, batchNo}] = qty
		}
	}

	type ledgerGapRow struct {
		key       ledgerKey
		net       decimal.Decimal
		allocated decimal.Decimal
	}
	var ledgerGaps []ledgerGapRow
	for _, n := range nets {
		key := ledgerKey{n.Sku, n.Location, n.BatchNo}
		allocated := expected[key]
		delete(expected, key)
		if n.Quantity.Equal(allocated) {
			continue
		}
		ledgerGaps = append(ledgerGaps, ledgerGapRow{key: key, net: n.Quantity, allocated: allocated})
	}
	// Map entries with no ledger rows at all.
	for key, allocated := range expected {
		if allocated.IsZero() {
			continue
		}
		ledgerGaps = append(ledgerGaps, ledgerGapRow{key: key, net: decimal.Zero, allocated: allocated})
	}
	sort.Slice(ledgerGaps, func(i, j int) bool {
		a, b := ledgerGaps[i].key, ledgerGaps[j].key
		if a.Sku != b.Sku {
			return a.Sku < b.Sku
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.BatchNo < b.BatchNo
	})
	for _, g := range ledgerGaps {
		_ = db.WithContext(ctx).Create(&ReconciliationReport{
			BusinessId:    businessId,
			CheckType:     "LEDGER_ALLOCATION",
			Sku:           g.key.Sku,
			Location:      g.key.Location,
			BatchNo:       g.key.BatchNo,
			Details:       fmt.Sprintf("ledger_net=%s != allocated=%s", g.net.String(), g.allocated.String()),
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
		summary.LedgerGaps++
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "ReconciliationChecks",
			"business_id":    businessId,
			"correlation_id": cid,
			"layer_gaps":     summary.LayerGaps,
			"map_total_gaps": summary.MapTotalGaps,
			"ledger_gaps":    summary.LedgerGaps,
		}).Info("reconciliation checks completed")
	}
	return summary, nil
}
