package config

import (
	"os"
	"strconv"
	"strings"
)

// ZeroStockWorkerCount sizes the worker pool used when zeroing allocations
// across many inventory records.
//
// Set via env:
// - ZERO_STOCK_WORKERS=8 (default 8)
func ZeroStockWorkerCount() int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("ZERO_STOCK_WORKERS")))
	if err != nil || n <= 0 {
		return 8
	}
	return n
}

// AutoCreateImportItems controls whether packing-list ingestion may create
// catalog items for unknown SKUs instead of skipping the row.
//
// Set via env:
// - IMPORT_AUTO_CREATE_ITEMS=false (default true)
func AutoCreateImportItems() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("IMPORT_AUTO_CREATE_ITEMS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
