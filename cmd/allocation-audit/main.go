package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

// allocation-audit compares the append-only ledger against the allocation
// maps. Mode one diffs ledger net quantities per sku for a batch key; mode
// two prints the running balance for a single (sku, location) so you can
// see exactly which row made stock go negative.
//
// Examples:
//
//	go run ./cmd/allocation-audit/ -business-id=... -batch=B-2026-04
//	go run ./cmd/allocation-audit/ -business-id=... -sku=AX-1020 -location=WH1
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	batch := flag.String("batch", "", "Batch number to audit (default: every batch plus the unassigned pool)")
	sku := flag.String("sku", "", "Trace mode: sku")
	location := flag.String("location", "", "Trace mode: location")
	showAll := flag.Bool("show-all", false, "Trace mode: include reversals and reversed rows")
	limit := flag.Int("limit", 500, "Trace mode: max rows to print (0 = no limit)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if strings.TrimSpace(*sku) != "" || strings.TrimSpace(*location) != "" {
		if strings.TrimSpace(*sku) == "" || strings.TrimSpace(*location) == "" {
			fmt.Fprintln(os.Stderr, "trace mode needs both --sku and --location")
			os.Exit(1)
		}
		traceKey(*businessID, strings.TrimSpace(*sku), strings.TrimSpace(*location), *showAll, *limit)
		return
	}

	ctx := context.WithValue(context.Background(), utils.ContextKeyBusinessId, *businessID)

	batchNos := []string{}
	if strings.TrimSpace(*batch) != "" {
		batchNos = append(batchNos, strings.TrimSpace(*batch))
	} else {
		if err := db.WithContext(ctx).Model(&models.Batch{}).
			Where("business_id = ?", *businessID).
			Order("batch_no").
			Pluck("batch_no", &batchNos).Error; err != nil {
			fmt.Fprintf(os.Stderr, "list batches: %v\n", err)
			os.Exit(1)
		}
		batchNos = append(batchNos, models.UnassignedPool)
	}

	mismatches := 0
	for _, batchNo := range batchNos {
		ledger, err := models.GetLedgerNetQuantities(ctx, *businessID, batchNo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ledger net for %s: %v\n", batchNo, err)
			os.Exit(1)
		}
		allocated, err := models.GetBatchAllocatedQuantities(ctx, *businessID, batchNo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "allocations for %s: %v\n", batchNo, err)
			os.Exit(1)
		}

		skus := map[string]bool{}
		for s := range ledger {
			skus[s] = true
		}
		for s := range allocated {
			skus[s] = true
		}
		sortedSkus := make([]string, 0, len(skus))
		for s := range skus {
			sortedSkus = append(sortedSkus, s)
		}
		sort.Strings(sortedSkus)

		for _, s := range sortedSkus {
			net := ledger[s]
			held := allocated[s]
			if net.Equal(held) {
				continue
			}
			mismatches++
			fmt.Printf("MISMATCH batch=%s sku=%s ledger_net=%s allocated=%s delta=%s\n",
				batchNo, s, net.String(), held.String(), held.Sub(net).String())
		}
	}

	if mismatches == 0 {
		fmt.Println("OK: ledger and allocation maps agree")
		return
	}
	fmt.Printf("mismatches=%d\n", mismatches)
	os.Exit(1)
}

func traceKey(businessID string, sku string, location string, showAll bool, limit int) {
	db := config.GetDB()

	fmt.Printf("business_id=%s sku=%s location=%s\n", businessID, sku, location)

	type row struct {
		ID         int
		CreatedAt  time.Time
		BatchNo    string
		Vin        string
		Type       string
		Reason     string
		Quantity   string
		IsReversal bool
		ReversedBy *int
		RunningQty string
	}

	whereExtra := ""
	if !showAll {
		whereExtra = " AND is_reversal = 0 AND reversed_by_transaction_id IS NULL "
	}
	limitSQL := ""
	if limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d ", limit)
	}

	sql := fmt.Sprintf(`
SELECT
  id,
  created_at,
  batch_no,
  vin,
  type,
  reason,
  quantity,
  is_reversal,
  reversed_by_transaction_id AS reversed_by,
  SUM(quantity) OVER (
    PARTITION BY sku, location
    ORDER BY id
    ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
  ) AS running_qty
FROM inventory_transactions
WHERE business_id = ?
  AND sku = ?
  AND location = ?
%s
ORDER BY id
%s
`, whereExtra, limitSQL)

	var rows []row
	if err := db.Raw(sql, businessID, sku, location).Scan(&rows).Error; err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("no rows found")
		return
	}

	fmt.Printf("rows=%d\n", len(rows))
	negFound := false
	var negID int
	var negRunning string
	for _, r := range rows {
		fmt.Printf("id=%d date=%s batch=%s vin=%s type=%s qty=%s running=%s reason=%q reversal=%v reversed_by=%v\n",
			r.ID,
			r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			r.BatchNo,
			r.Vin,
			r.Type,
			r.Quantity,
			r.RunningQty,
			r.Reason,
			r.IsReversal,
			intPtr(r.ReversedBy),
		)
		if !negFound && strings.HasPrefix(strings.TrimSpace(r.RunningQty), "-") {
			negFound = true
			negID = r.ID
			negRunning = r.RunningQty
		}
	}
	if negFound {
		fmt.Printf("FIRST_NEGATIVE: id=%d running_qty=%s\n", negID, negRunning)
		fmt.Println("This is the earliest row where the location running balance went negative.")
		fmt.Println("Fix options are usually: reverse the outgoing row, or record the missing receipt before it.")
	} else {
		fmt.Println("OK: no negative running balance detected in printed rows.")
	}
}

func intPtr(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
