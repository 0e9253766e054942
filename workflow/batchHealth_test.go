package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/shopspring/decimal"
)

func requirement(sku string, totalNeeded, consumed, remaining string, carsCompleted, totalCars int) *models.BatchRequirement {
	return &models.BatchRequirement{
		Sku:           sku,
		TotalNeeded:   dec(totalNeeded),
		Consumed:      dec(consumed),
		Remaining:     dec(remaining),
		CarsCompleted: carsCompleted,
		TotalCars:     totalCars,
	}
}

func TestEvaluateBatchRequirements_ClassifiesComponents(t *testing.T) {
	batch := &models.Batch{ID: 7, BatchNo: "B-2026-01", TotalCars: 10}
	requirements := []*models.BatchRequirement{
		requirement("WHEEL", "40", "12", "28", 3, 10),
		requirement("SEAT", "20", "6", "14", 3, 10),
		requirement("MOTOR", "10", "3", "7", 3, 10),
	}
	available := map[string]decimal.Decimal{
		"WHEEL": dec("20"),  // short of the 28 still needed
		"SEAT":  dec("14"),  // exactly enough
		"MOTOR": dec("200"), // far more than the plan needs
	}

	report := EvaluateBatchRequirements(batch, requirements, available)

	if report.Status != BatchHealthCritical {
		t.Fatalf("a blocked component must make the batch critical, got %s", report.Status)
	}
	if report.BlockedCount != 1 || report.ExcessCount != 1 {
		t.Errorf("expected 1 blocked / 1 excess, got %d / %d", report.BlockedCount, report.ExcessCount)
	}

	byStatus := map[string]*ComponentHealth{}
	for _, component := range report.Components {
		byStatus[component.Sku] = component
	}
	if byStatus["WHEEL"].Status != ComponentStatusBlocked || !byStatus["WHEEL"].Shortfall.Equal(dec("8")) {
		t.Errorf("unexpected wheel component: %+v", byStatus["WHEEL"])
	}
	if byStatus["SEAT"].Status != ComponentStatusOk {
		t.Errorf("exact coverage is ok, got %s", byStatus["SEAT"].Status)
	}
	if byStatus["MOTOR"].Status != ComponentStatusExcess || !byStatus["MOTOR"].Excess.Equal(dec("193")) {
		t.Errorf("unexpected motor component: %+v", byStatus["MOTOR"])
	}
	if byStatus["WHEEL"].CarsRemaining != 7 {
		t.Errorf("cars remaining should be 7, got %d", byStatus["WHEEL"].CarsRemaining)
	}
}

func TestEvaluateBatchRequirements_WarnsOnThinSlack(t *testing.T) {
	batch := &models.Batch{ID: 7, BatchNo: "B-2026-01", TotalCars: 10}

	// one car consumes 10 wheels; 5 spare is less than one car's worth
	thin := EvaluateBatchRequirements(batch, []*models.BatchRequirement{
		requirement("WHEEL", "100", "40", "60", 4, 10),
	}, map[string]decimal.Decimal{"WHEEL": dec("65")})
	if thin.Status != BatchHealthWarning {
		t.Errorf("slack under one car's need should warn, got %s", thin.Status)
	}

	comfortable := EvaluateBatchRequirements(batch, []*models.BatchRequirement{
		requirement("WHEEL", "100", "40", "60", 4, 10),
	}, map[string]decimal.Decimal{"WHEEL": dec("75")})
	if comfortable.Status != BatchHealthHealthy {
		t.Errorf("slack above one car's need is healthy, got %s", comfortable.Status)
	}
}

func TestEvaluateBatchRequirements_FinishedComponentDoesNotWarn(t *testing.T) {
	batch := &models.Batch{ID: 7, BatchNo: "B-2026-01", TotalCars: 10}
	requirements := []*models.BatchRequirement{
		requirement("WHEEL", "100", "100", "0", 10, 10),
	}

	report := EvaluateBatchRequirements(batch, requirements, map[string]decimal.Decimal{"WHEEL": dec("0")})

	if report.Status != BatchHealthHealthy {
		t.Errorf("a fully consumed component cannot warn, got %s", report.Status)
	}
	if report.Components[0].Status != ComponentStatusOk {
		t.Errorf("zero remaining with zero stock is ok, got %s", report.Components[0].Status)
	}
}

func TestEvaluateBatchRequirements_EmptyRequirementsHealthy(t *testing.T) {
	batch := &models.Batch{ID: 7, BatchNo: "B-2026-01", TotalCars: 10}

	report := EvaluateBatchRequirements(batch, nil, map[string]decimal.Decimal{})

	if report.Status != BatchHealthHealthy || len(report.Components) != 0 {
		t.Errorf("no tracked requirements means healthy: %+v", report)
	}
}

func TestEvaluateBatchRequirements_SnapshotIsReadOnly(t *testing.T) {
	// the global view hands every batch the same snapshot; evaluating one
	// batch must not drain the map the next batch reads
	available := map[string]decimal.Decimal{"AXLE": dec("8")}
	first := &models.Batch{ID: 1, BatchNo: "B-01", TotalCars: 4}
	second := &models.Batch{ID: 2, BatchNo: "B-02", TotalCars: 4}
	needs := func() []*models.BatchRequirement {
		return []*models.BatchRequirement{requirement("AXLE", "8", "2", "6", 1, 4)}
	}

	reportA := EvaluateBatchRequirements(first, needs(), available)
	reportB := EvaluateBatchRequirements(second, needs(), available)

	if reportA.BlockedCount != 0 || reportB.BlockedCount != 0 {
		t.Errorf("both batches should see the full pool: %+v %+v", reportA, reportB)
	}
	if !available["AXLE"].Equal(dec("8")) {
		t.Errorf("evaluation must not mutate the snapshot, got %s", available["AXLE"])
	}
	if !reportA.Components[0].Available.Equal(reportB.Components[0].Available) {
		t.Errorf("independent evaluations diverged: %s vs %s",
			reportA.Components[0].Available, reportB.Components[0].Available)
	}
}
