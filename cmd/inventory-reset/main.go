package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	dryRun := flag.Bool("dry-run", true, "Show counts only (no writes)")
	confirm := flag.String("confirm", "", "Type ZERO to proceed when dry-run=false")
	scope := flag.String("scope", "all", "all | unassigned | batch:<batchNo>")
	hard := flag.Bool("hard", false, "Delete allocation, raw and ledger rows instead of writing zeroing transactions")
	resetOutbox := flag.Bool("reset-outbox", false, "With --hard, also delete production outbox records")
	flushCache := flag.Bool("flush-cache", false, "With --hard, also flush Redis (cached lists and ledger sequence counters)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "ZERO" {
		fmt.Fprintln(os.Stderr, "set --confirm=ZERO to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	var biz models.Business
	if err := db.Where("id = ?", *businessID).First(&biz).Error; err != nil {
		fmt.Fprintf(os.Stderr, "business not found: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		printCounts(db, *businessID)
		return
	}

	ctx := context.WithValue(context.Background(), utils.ContextKeyBusinessId, *businessID)
	ctx = context.WithValue(ctx, utils.ContextKeyUserId, 0)
	ctx = context.WithValue(ctx, utils.ContextKeyUserName, "InventoryReset")

	if *hard {
		if err := hardReset(db, *businessID, *resetOutbox); err != nil {
			logger.WithError(err).Error("inventory reset failed")
			os.Exit(1)
		}
		if *flushCache {
			// Sequence counters live in Redis and would otherwise resume from
			// the pre-reset high-water mark.
			config.ConnectRedisWithRetry()
			if err := config.ClearRedis(ctx); err != nil {
				logger.WithError(err).Error("redis flush failed")
				os.Exit(1)
			}
			fmt.Println("redis flushed")
		}
		fmt.Println("inventory hard reset completed")
		return
	}

	var report *models.ZeroStockReport
	var err error
	switch {
	case *scope == "all":
		report, err = models.ZeroAllStock(ctx)
	case *scope == "unassigned":
		report, err = models.ZeroUnassignedStock(ctx)
	case strings.HasPrefix(*scope, "batch:"):
		report, err = models.ZeroStockForBatch(ctx, strings.TrimPrefix(*scope, "batch:"))
	default:
		fmt.Fprintln(os.Stderr, "invalid --scope; use all, unassigned or batch:<batchNo>")
		os.Exit(1)
	}
	if err != nil {
		logger.WithError(err).Error("inventory reset failed")
		os.Exit(1)
	}

	fmt.Printf("records zeroed: %d\n", report.RecordsAffected)
	fmt.Printf("quantity zeroed: %s\n", report.TotalQuantityZeroed.String())
	for _, failure := range report.Failures {
		fmt.Printf("failed: %s @ %s: %s\n", failure.Sku, failure.Location, failure.Error)
	}
	if len(report.Failures) > 0 {
		os.Exit(1)
	}
}

// hardReset wipes the tables outright. The ledgered path above is the normal
// one; this exists for rebuilding dev and staging tenants from scratch.
func hardReset(db *gorm.DB, businessID string, resetOutbox bool) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ?", businessID).Delete(&models.InventoryTransaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("business_id = ?", businessID).Delete(&models.BatchAllocation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("business_id = ?", businessID).Delete(&models.RawInventory{}).Error; err != nil {
			return err
		}
		if err := tx.Exec(`
			UPDATE batch_requirements
			SET consumed = 0, remaining = total_needed, cars_completed = 0
			WHERE business_id = ?`, businessID).Error; err != nil {
			return err
		}

		if resetOutbox {
			if err := tx.Where("business_id = ? AND reference_type IN ('ZC','BA','BC','SZ','AT','PL')", businessID).
				Delete(&models.ProductionEventRecord{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func printCounts(db *gorm.DB, businessID string) {
	type countRow struct {
		Name  string
		Count int64
	}
	var counts []countRow
	pushCount := func(name string, query string, args ...interface{}) {
		var c int64
		_ = db.Raw(query, args...).Scan(&c).Error
		counts = append(counts, countRow{Name: name, Count: c})
	}

	pushCount("batch_allocations", "SELECT COUNT(*) FROM batch_allocations WHERE business_id = ?", businessID)
	pushCount("raw_inventories", "SELECT COUNT(*) FROM raw_inventories WHERE business_id = ?", businessID)
	pushCount("inventory_transactions", "SELECT COUNT(*) FROM inventory_transactions WHERE business_id = ?", businessID)
	pushCount("consumed_requirements", `
		SELECT COUNT(*) FROM batch_requirements
		WHERE business_id = ? AND consumed > 0`, businessID)
	pushCount("production_outbox", `
		SELECT COUNT(*) FROM production_event_records
		WHERE business_id = ? AND reference_type IN ('ZC','BA','BC','SZ','AT','PL')`, businessID)

	for _, row := range counts {
		fmt.Printf("%s: %d\n", row.Name, row.Count)
	}
}
