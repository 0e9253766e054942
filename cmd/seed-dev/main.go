// seed-dev creates or reuses a dev tenant and fills it with a small demo
// dataset: a parts catalog, zone routing for one car type, an active batch
// with planned VINs, and enough received stock to complete a few units.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
//
// Re-running is safe: catalog rows are find-or-create, and the batch block
// (plan, activation, stock) is skipped when the batch already exists.
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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func main() {
	businessName := flag.String("business-name", getenv("SEED_BUSINESS_NAME", "factory-dev"), "Business name to create/reuse")
	businessEmail := flag.String("email", getenv("SEED_BUSINESS_EMAIL", "factory-dev@local"), "Business contact email")
	cars := flag.Int("cars", 5, "Planned unit count for the demo batch")
	withStock := flag.Bool("with-stock", true, "Receive demo stock after seeding the catalog")
	flag.Parse()

	if *cars < 1 {
		*cars = 1
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	// 1) Find or create the tenant (idempotent).
	var business models.Business
	err := db.WithContext(ctx).Model(&models.Business{}).
		Where("email = ? OR name = ?", strings.TrimSpace(*businessEmail), strings.TrimSpace(*businessName)).
		First(&business).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup business: %v\n", err)
			os.Exit(1)
		}
		created, err := models.CreateBusiness(ctx, &models.NewBusiness{
			Name:  strings.TrimSpace(*businessName),
			Email: strings.TrimSpace(*businessEmail),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create business: %v\n", err)
			os.Exit(1)
		}
		business = *created
	}
	businessID := business.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	// 2) Catalog: parts, zones, car type, BOMs, zone routing.
	items := []*models.NewItem{
		{Sku: "ENG-2L", Name: "2.0L Engine", Unit: "pcs"},
		{Sku: "GBX-6M", Name: "6-speed Gearbox", Unit: "pcs"},
		{Sku: "WHL-17", Name: "17in Wheel", Unit: "pcs"},
		{Sku: "SEAT-F", Name: "Fabric Seat", Unit: "pcs"},
		{Sku: "HARN-M", Name: "Main Wiring Harness", Unit: "pcs"},
		{Sku: "ECU-01", Name: "Engine Control Unit", Unit: "pcs"},
	}
	for _, it := range items {
		ensure(ctx, "item "+it.Sku, existsWhere[models.Item](ctx, businessID, "sku = ?", it.Sku), func() error {
			_, err := models.CreateItem(ctx, it)
			return err
		})
	}

	zones := []*models.NewZone{
		{Code: "Z1", Name: "Body Shop", Sequence: 10},
		{Code: "Z2", Name: "Paint", Sequence: 20},
		{Code: "Z3", Name: "Final Assembly", Sequence: 30},
		{Code: "Z4", Name: "Inspection", Sequence: 40},
	}
	for _, z := range zones {
		ensure(ctx, "zone "+z.Code, existsWhere[models.Zone](ctx, businessID, "code = ?", z.Code), func() error {
			_, err := models.CreateZone(ctx, z)
			return err
		})
	}

	const carCode = "SUV-X"
	ensure(ctx, "car type "+carCode, existsWhere[models.CarType](ctx, businessID, "code = ?", carCode), func() error {
		_, err := models.CreateCarType(ctx, &models.NewCarType{Code: carCode, Name: "Crossover SUV X"})
		return err
	})

	boms := []*models.NewBom{
		{Code: "BOM-BODY", Name: "Body shop kit", Components: []models.NewBomComponent{
			{Sku: "HARN-M", Quantity: decimal.NewFromInt(1)},
		}},
		{Code: "BOM-ASSY", Name: "Final assembly kit", Components: []models.NewBomComponent{
			{Sku: "ENG-2L", Quantity: decimal.NewFromInt(1)},
			{Sku: "GBX-6M", Quantity: decimal.NewFromInt(1)},
			{Sku: "WHL-17", Quantity: decimal.NewFromInt(4)},
			{Sku: "SEAT-F", Quantity: decimal.NewFromInt(5)},
			{Sku: "ECU-01", Quantity: decimal.NewFromInt(1)},
		}},
	}
	for _, b := range boms {
		ensure(ctx, "bom "+b.Code, existsWhere[models.Bom](ctx, businessID, "code = ?", b.Code), func() error {
			_, err := models.CreateBom(ctx, b)
			return err
		})
	}

	mappings := []*models.NewZoneBomMapping{
		{ZoneCode: "Z1", CarCode: carCode, BomCode: "BOM-BODY", ConsumeOnCompletion: true},
		{ZoneCode: "Z3", CarCode: carCode, BomCode: "BOM-ASSY", ConsumeOnCompletion: true},
	}
	for _, m := range mappings {
		name := fmt.Sprintf("mapping %s/%s/%s", m.ZoneCode, m.CarCode, m.BomCode)
		ensure(ctx, name,
			existsWhere[models.ZoneBomMapping](ctx, businessID, "zone_code = ? AND car_code = ? AND bom_code = ?", m.ZoneCode, m.CarCode, m.BomCode),
			func() error {
				_, err := models.CreateZoneBomMapping(ctx, m)
				return err
			})
	}

	// 3) Demo batch with plan, activation and stock. Skipped entirely when the
	// batch exists so receipts are not booked twice.
	const batchNo = "B-DEV-01"
	batchExists, err := existsWhere[models.Batch](ctx, businessID, "batch_no = ?", batchNo)()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup batch: %v\n", err)
		os.Exit(1)
	}
	if batchExists {
		fmt.Printf("batch %s already seeded; skipping plan/stock\n", batchNo)
	} else {
		perCar := map[string]int64{
			"ENG-2L": 1, "GBX-6M": 1, "WHL-17": 4, "SEAT-F": 5, "HARN-M": 1, "ECU-01": 1,
		}
		declared := make([]models.NewDeclaredItem, 0, len(perCar))
		for sku, qty := range perCar {
			declared = append(declared, models.NewDeclaredItem{
				Sku:      sku,
				Quantity: decimal.NewFromInt(qty * int64(*cars)),
			})
		}

		batch, err := models.CreateBatch(ctx, &models.NewBatch{
			BatchNo:       batchNo,
			Name:          "Dev demo batch",
			CarCode:       carCode,
			TotalCars:     *cars,
			DeclaredItems: declared,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create batch: %v\n", err)
			os.Exit(1)
		}

		plans := make([]*models.NewVinPlan, 0, *cars)
		for i := 1; i <= *cars; i++ {
			plans = append(plans, &models.NewVinPlan{Vin: fmt.Sprintf("DEVVIN%05d", i)})
		}
		if _, err := models.AddVinPlans(ctx, batch.ID, plans); err != nil {
			fmt.Fprintf(os.Stderr, "failed to plan vins: %v\n", err)
			os.Exit(1)
		}

		if _, err := models.ActivateBatch(ctx, batch.ID); err != nil {
			fmt.Fprintf(os.Stderr, "failed to activate batch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created batch %s (id=%d, %d units)\n", batchNo, batch.ID, *cars)

		if *withStock {
			// Cover three units per sku from the batch pool, and a little
			// unassigned surplus so transfers have something to move.
			for sku, qty := range perCar {
				if _, err := models.ReceiveStock(ctx, &models.NewStockReceipt{
					Sku:      sku,
					Location: "WH1",
					BatchNo:  batchNo,
					Quantity: decimal.NewFromInt(qty * 3),
					Reason:   "dev seed",
				}); err != nil {
					fmt.Fprintf(os.Stderr, "failed to receive %s: %v\n", sku, err)
					os.Exit(1)
				}
			}
			if _, err := models.ReceiveStock(ctx, &models.NewStockReceipt{
				Sku:      "WHL-17",
				Location: "WH1",
				Quantity: decimal.NewFromInt(8),
				Reason:   "dev seed surplus",
			}); err != nil {
				fmt.Fprintf(os.Stderr, "failed to receive surplus: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("received demo stock into WH1")
		}
	}

	fmt.Println("Seed complete")
	fmt.Printf("BusinessID: %s | BusinessName: %s\n", businessID, business.Name)
}

// existsWhere returns a lookup closure so ensure can report the entity name
// on failure without repeating the query at each call site.
func existsWhere[T any](ctx context.Context, businessID string, query string, args ...interface{}) func() (bool, error) {
	return func() (bool, error) {
		count, err := utils.ResourceCountWhere[T](ctx, businessID, query, args...)
		if err != nil {
			return false, err
		}
		return count > 0, nil
	}
}

func ensure(ctx context.Context, name string, exists func() (bool, error), create func() error) {
	found, err := exists()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup %s: %v\n", name, err)
		os.Exit(1)
	}
	if found {
		return
	}
	if err := create(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", name, err)
		os.Exit(1)
	}
	fmt.Printf("created %s\n", name)
}
