package workflow

import (
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func plan(id int, vin, carCode string) *models.VinPlan {
	return &models.VinPlan{ID: id, Vin: vin, CarCode: carCode}
}

func TestSimulateVinAllocation_PlanOrderClaimsStockFirst(t *testing.T) {
	plans := []*models.VinPlan{
		plan(1, "VIN001", "SUV"),
		plan(2, "VIN002", "SUV"),
		plan(3, "VIN003", "SUV"),
	}
	perCar := map[string]map[string]decimal.Decimal{
		"SUV": {"WHEEL": dec("4")},
	}
	pool := map[string]decimal.Decimal{"WHEEL": dec("10")}

	results, summary := SimulateVinAllocation(plans, perCar, pool)

	if summary.ReadyVins != 2 || summary.BlockedVins != 1 {
		t.Fatalf("expected 2 ready / 1 blocked, got %d / %d", summary.ReadyVins, summary.BlockedVins)
	}
	if results[0].Status != VinStatusReady || results[1].Status != VinStatusReady {
		t.Errorf("earlier planned units should claim stock first: %+v", results)
	}
	if results[2].Status != VinStatusBlocked {
		t.Fatalf("third unit should be blocked, got %s", results[2].Status)
	}

	shortage := results[2].Shortages[0]
	if !shortage.Required.Equal(dec("4")) || !shortage.Available.Equal(dec("2")) || !shortage.Shortfall.Equal(dec("2")) {
		t.Errorf("unexpected shortage detail: %+v", shortage)
	}
	if len(summary.TopShortages) != 1 || summary.TopShortages[0].Sku != "WHEEL" ||
		!summary.TopShortages[0].Shortfall.Equal(dec("2")) || summary.TopShortages[0].VinCount != 1 {
		t.Errorf("unexpected top shortages: %+v", summary.TopShortages)
	}
}

func TestSimulateVinAllocation_BlockedUnitDeductsNothing(t *testing.T) {
	// the first unit has enough seats but not enough wheels; being blocked
	// it must leave the seats for the unit after it
	plans := []*models.VinPlan{
		plan(1, "VIN001", "SUV"),
		plan(2, "VIN002", "VAN"),
	}
	perCar := map[string]map[string]decimal.Decimal{
		"SUV": {"WHEEL": dec("4"), "SEAT": dec("2")},
		"VAN": {"SEAT": dec("5")},
	}
	pool := map[string]decimal.Decimal{"WHEEL": dec("3"), "SEAT": dec("5")}

	results, summary := SimulateVinAllocation(plans, perCar, pool)

	if results[0].Status != VinStatusBlocked {
		t.Fatalf("first unit should be blocked, got %s", results[0].Status)
	}
	if len(results[0].Shortages) != 1 || results[0].Shortages[0].Sku != "WHEEL" {
		t.Errorf("only the short sku should be reported: %+v", results[0].Shortages)
	}
	if results[1].Status != VinStatusReady {
		t.Errorf("second unit should still see the full seat pool, got %s", results[1].Status)
	}
	if summary.ReadyVins != 1 || summary.BlockedVins != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestSimulateVinAllocation_ShortagesSortedBySku(t *testing.T) {
	plans := []*models.VinPlan{plan(1, "VIN001", "SUV")}
	perCar := map[string]map[string]decimal.Decimal{
		"SUV": {"ZORB": dec("2"), "AXLE": dec("2"), "MOTOR": dec("2")},
	}
	pool := map[string]decimal.Decimal{}

	results, _ := SimulateVinAllocation(plans, perCar, pool)

	shortages := results[0].Shortages
	if len(shortages) != 3 {
		t.Fatalf("expected 3 shortages, got %d", len(shortages))
	}
	for i, want := range []string{"AXLE", "MOTOR", "ZORB"} {
		if shortages[i].Sku != want {
			t.Errorf("shortage %d should be %s, got %s", i, want, shortages[i].Sku)
		}
	}
}

func TestSimulateVinAllocation_EmptyRequirementsAlwaysReady(t *testing.T) {
	plans := []*models.VinPlan{plan(1, "VIN001", "BARE")}
	perCar := map[string]map[string]decimal.Decimal{"BARE": {}}
	pool := map[string]decimal.Decimal{}

	results, summary := SimulateVinAllocation(plans, perCar, pool)

	if results[0].Status != VinStatusReady {
		t.Errorf("a car type needing nothing is always ready, got %s", results[0].Status)
	}
	if summary.ReadyVins != 1 || summary.BlockedVins != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestSimulateVinAllocation_NoPlans(t *testing.T) {
	results, summary := SimulateVinAllocation(nil, nil, map[string]decimal.Decimal{})

	if summary.TotalVins != 0 || len(results) != 0 {
		t.Errorf("empty plan should yield an empty report: %+v %+v", summary, results)
	}
	if summary.TopShortages == nil || len(summary.TopShortages) != 0 {
		t.Errorf("top shortages should be empty, not nil: %+v", summary.TopShortages)
	}
}

func TestSimulateVinAllocation_TopShortagesOrderedAndCapped(t *testing.T) {
	// twelve car types, each short on its own sku by a distinct amount,
	// plus two skus tied so the sku tiebreak is visible
	plans := make([]*models.VinPlan, 0, 14)
	perCar := make(map[string]map[string]decimal.Decimal)
	for i := 1; i <= 12; i++ {
		carCode := fmt.Sprintf("CAR-%02d", i)
		sku := fmt.Sprintf("SKU-%02d", i)
		plans = append(plans, plan(i, fmt.Sprintf("VIN%03d", i), carCode))
		perCar[carCode] = map[string]decimal.Decimal{sku: decimal.NewFromInt(int64(i))}
	}
	plans = append(plans, plan(13, "VIN013", "CAR-TIE-B"), plan(14, "VIN014", "CAR-TIE-A"))
	perCar["CAR-TIE-B"] = map[string]decimal.Decimal{"TIE-B": dec("20")}
	perCar["CAR-TIE-A"] = map[string]decimal.Decimal{"TIE-A": dec("20")}

	_, summary := SimulateVinAllocation(plans, perCar, map[string]decimal.Decimal{})

	top := summary.TopShortages
	if len(top) != 10 {
		t.Fatalf("top shortages must cap at 10, got %d", len(top))
	}
	if top[0].Sku != "TIE-A" || top[1].Sku != "TIE-B" {
		t.Errorf("equal shortfalls should tiebreak by sku ascending, got %s then %s", top[0].Sku, top[1].Sku)
	}
	for i := 1; i < len(top); i++ {
		if top[i].Shortfall.GreaterThan(top[i-1].Shortfall) {
			t.Errorf("top shortages not in descending order at %d: %+v", i, top)
		}
	}
	// SKU-01 and SKU-02 hold the smallest shortfalls and must be cut
	for _, entry := range top {
		if entry.Sku == "SKU-01" || entry.Sku == "SKU-02" {
			t.Errorf("smallest shortfalls should fall outside the cap: %+v", top)
		}
	}
}

func TestSimulateVinAllocation_PoolSharedAcrossCarTypes(t *testing.T) {
	// two car types drawing the same sku compete for one pool
	plans := []*models.VinPlan{
		plan(1, "VIN001", "SUV"),
		plan(2, "VIN002", "VAN"),
	}
	perCar := map[string]map[string]decimal.Decimal{
		"SUV": {"BATTERY": dec("1")},
		"VAN": {"BATTERY": dec("1")},
	}
	pool := map[string]decimal.Decimal{"BATTERY": dec("1")}

	results, _ := SimulateVinAllocation(plans, perCar, pool)

	if results[0].Status != VinStatusReady || results[1].Status != VinStatusBlocked {
		t.Errorf("pool is shared across car types: %+v", results)
	}
}
