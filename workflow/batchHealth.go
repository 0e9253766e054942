package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	BatchHealthHealthy  = "healthy"
	BatchHealthWarning  = "warning"
	BatchHealthCritical = "critical"

	ComponentStatusOk      = "ok"
	ComponentStatusBlocked = "blocked"
	ComponentStatusExcess  = "excess"
)

type ComponentHealth struct {
	Sku           string          `json:"sku"`
	TotalNeeded   decimal.Decimal `json:"total_needed"`
	Consumed      decimal.Decimal `json:"consumed"`
	Remaining     decimal.Decimal `json:"remaining"`
	Available     decimal.Decimal `json:"available"`
	Shortfall     decimal.Decimal `json:"shortfall"`
	Excess        decimal.Decimal `json:"excess"`
	CarsCompleted int             `json:"cars_completed"`
	CarsRemaining int             `json:"cars_remaining"`
	Status        string          `json:"status"`
}

type BatchHealthReport struct {
	BatchId      int                `json:"batch_id"`
	BatchNo      string             `json:"batch_no"`
	Status       string             `json:"status"`
	TotalCars    int                `json:"total_cars"`
	BlockedCount int                `json:"blocked_count"`
	ExcessCount  int                `json:"excess_count"`
	Components   []*ComponentHealth `json:"components"`
}

type GlobalHealthReport struct {
	Status        string                     `json:"status"`
	TotalBatches  int                        `json:"total_batches"`
	CriticalCount int                        `json:"critical_count"`
	WarningCount  int                        `json:"warning_count"`
	HealthyCount  int                        `json:"healthy_count"`
	Batches       map[int]*BatchHealthReport `json:"batches"`
}

// EvaluateBatchRequirements classifies each tracked requirement against an
// availability snapshot. A component is blocked when stock cannot cover
// what the unfinished units still need, and excess when stock exceeds it.
// The batch goes critical on any blocked component, and warns when a still
// open component's slack is under one car's worth of that sku. The
// snapshot is only read; evaluating several batches against one shared
// snapshot does not let them consume from each other.
func EvaluateBatchRequirements(batch *models.Batch, requirements []*models.BatchRequirement, available map[string]decimal.Decimal) *BatchHealthReport {

	report := &BatchHealthReport{
		BatchId:    batch.ID,
		BatchNo:    batch.BatchNo,
		Status:     BatchHealthHealthy,
		TotalCars:  batch.TotalCars,
		Components: make([]*ComponentHealth, 0, len(requirements)),
	}

	lowMargin := false
	for _, requirement := range requirements {
		onHand := available[requirement.Sku]
		component := &ComponentHealth{
			Sku:           requirement.Sku,
			TotalNeeded:   requirement.TotalNeeded,
			Consumed:      requirement.Consumed,
			Remaining:     requirement.Remaining,
			Available:     onHand,
			CarsCompleted: requirement.CarsCompleted,
			CarsRemaining: requirement.TotalCars - requirement.CarsCompleted,
			Status:        ComponentStatusOk,
		}

		switch {
		case onHand.LessThan(requirement.Remaining):
			component.Status = ComponentStatusBlocked
			component.Shortfall = requirement.Remaining.Sub(onHand)
			report.BlockedCount++
		case onHand.GreaterThan(requirement.Remaining):
			component.Status = ComponentStatusExcess
			component.Excess = onHand.Sub(requirement.Remaining)
			report.ExcessCount++
		}

		// slack under one car's average need means the next receipt delay
		// will block the line
		if component.Status != ComponentStatusBlocked &&
			requirement.Remaining.IsPositive() && requirement.TotalCars > 0 {
			perCar := requirement.TotalNeeded.Div(decimal.NewFromInt(int64(requirement.TotalCars)))
			if onHand.Sub(requirement.Remaining).LessThan(perCar) {
				lowMargin = true
			}
		}

		report.Components = append(report.Components, component)
	}

	if report.BlockedCount > 0 {
		report.Status = BatchHealthCritical
	} else if lowMargin {
		report.Status = BatchHealthWarning
	}

	return report
}

// ComputeBatchHealth loads one batch's requirement rows and an availability
// snapshot for their skus, then classifies them.
func ComputeBatchHealth(ctx context.Context, batchId int) (*BatchHealthReport, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	batch, err := models.GetBatch(ctx, batchId)
	if err != nil {
		return nil, err
	}

	requirements, err := models.GetBatchRequirements(ctx, batchId)
	if err != nil {
		return nil, err
	}

	skus := make([]string, 0, len(requirements))
	for _, requirement := range requirements {
		skus = append(skus, requirement.Sku)
	}
	available, err := models.GetAvailableQuantities(ctx, businessId, skus)
	if err != nil {
		return nil, err
	}

	return EvaluateBatchRequirements(batch, requirements, available), nil
}

// ComputeGlobalHealth evaluates every in progress batch against one shared
// availability snapshot. The active set is derived from batch status at
// call time, never cached, so a batch completed a moment ago simply stops
// appearing. Batches are evaluated independently; a critical batch does
// not shield the others from their own shortfalls.
func ComputeGlobalHealth(ctx context.Context) (*GlobalHealthReport, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	batches, err := models.GetActiveBatches(ctx, businessId)
	if err != nil {
		return nil, err
	}

	report := &GlobalHealthReport{
		Status:       BatchHealthHealthy,
		TotalBatches: len(batches),
		Batches:      make(map[int]*BatchHealthReport, len(batches)),
	}

	requirementsByBatch := make(map[int][]*models.BatchRequirement, len(batches))
	skuSet := make(map[string]bool)
	for _, batch := range batches {
		requirements, err := models.GetBatchRequirements(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		requirementsByBatch[batch.ID] = requirements
		for _, requirement := range requirements {
			skuSet[requirement.Sku] = true
		}
	}
	skus := make([]string, 0, len(skuSet))
	for sku := range skuSet {
		skus = append(skus, sku)
	}
	available, err := models.GetAvailableQuantities(ctx, businessId, skus)
	if err != nil {
		return nil, err
	}

	for _, batch := range batches {
		batchReport := EvaluateBatchRequirements(batch, requirementsByBatch[batch.ID], available)
		report.Batches[batch.ID] = batchReport

		switch batchReport.Status {
		case BatchHealthCritical:
			report.CriticalCount++
		case BatchHealthWarning:
			report.WarningCount++
		default:
			report.HealthyCount++
		}
	}

	if report.CriticalCount > 0 {
		report.Status = BatchHealthCritical
	} else if report.WarningCount > 0 {
		report.Status = BatchHealthWarning
	}

	return report, nil
}
