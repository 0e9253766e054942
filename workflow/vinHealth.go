package workflow

import (
	"context"
	"errors"
	"sort"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	VinStatusReady   = "ready"
	VinStatusBlocked = "blocked"
)

type VinShortage struct {
	Sku       string          `json:"sku"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

type VinHealthResult struct {
	VinPlanId int           `json:"vin_plan_id"`
	Vin       string        `json:"vin"`
	CarCode   string        `json:"car_code"`
	Status    string        `json:"status"`
	Shortages []VinShortage `json:"shortages,omitempty"`
}

type TopShortage struct {
	Sku       string          `json:"sku"`
	Shortfall decimal.Decimal `json:"shortfall"`
	VinCount  int             `json:"vin_count"`
}

type VinHealthSummary struct {
	TotalVins    int           `json:"total_vins"`
	ReadyVins    int           `json:"ready_vins"`
	BlockedVins  int           `json:"blocked_vins"`
	TopShortages []TopShortage `json:"top_shortages"`
}

type VinHealthReport struct {
	BatchId int                `json:"batch_id"`
	BatchNo string             `json:"batch_no"`
	Summary VinHealthSummary   `json:"summary"`
	Results []*VinHealthResult `json:"results"`
}

// SimulateVinAllocation walks plan rows in order against a single pooled
// stock snapshot. Earlier planned units claim scarce stock first: a ready
// unit deducts its full requirement from the pool, a blocked unit deducts
// nothing, not even the components it had enough of. It is a simulation
// over the snapshot, not a reservation; the pool map is consumed in place.
func SimulateVinAllocation(plans []*models.VinPlan, perCar map[string]map[string]decimal.Decimal, pool map[string]decimal.Decimal) ([]*VinHealthResult, VinHealthSummary) {

	summary := VinHealthSummary{
		TotalVins:    len(plans),
		TopShortages: make([]TopShortage, 0),
	}
	results := make([]*VinHealthResult, 0, len(plans))

	shortfallBySku := make(map[string]decimal.Decimal)
	vinCountBySku := make(map[string]int)

	for _, plan := range plans {
		requirements := perCar[plan.CarCode]

		result := &VinHealthResult{
			VinPlanId: plan.ID,
			Vin:       plan.Vin,
			CarCode:   plan.CarCode,
		}

		var shortages []VinShortage
		for sku, required := range requirements {
			available := pool[sku]
			if available.GreaterThanOrEqual(required) {
				continue
			}
			shortages = append(shortages, VinShortage{
				Sku:       sku,
				Required:  required,
				Available: available,
				Shortfall: required.Sub(available),
			})
		}

		if len(shortages) == 0 {
			result.Status = VinStatusReady
			summary.ReadyVins++
			for sku, required := range requirements {
				pool[sku] = pool[sku].Sub(required)
			}
		} else {
			// stable output order regardless of map iteration
			sort.Slice(shortages, func(i, j int) bool {
				return shortages[i].Sku < shortages[j].Sku
			})
			result.Status = VinStatusBlocked
			result.Shortages = shortages
			summary.BlockedVins++
			for _, shortage := range shortages {
				shortfallBySku[shortage.Sku] = shortfallBySku[shortage.Sku].Add(shortage.Shortfall)
				vinCountBySku[shortage.Sku]++
			}
		}

		results = append(results, result)
	}

	top := make([]TopShortage, 0, len(shortfallBySku))
	for sku, shortfall := range shortfallBySku {
		top = append(top, TopShortage{
			Sku:       sku,
			Shortfall: shortfall,
			VinCount:  vinCountBySku[sku],
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if !top[i].Shortfall.Equal(top[j].Shortfall) {
			return top[i].Shortfall.GreaterThan(top[j].Shortfall)
		}
		return top[i].Sku < top[j].Sku
	})
	if len(top) > 10 {
		top = top[:10]
	}
	summary.TopShortages = top

	return results, summary
}

// ComputeVinHealth loads a batch's plan, resolves every car type it uses,
// takes one availability snapshot and runs the allocation walk. The
// snapshot takes no lock, so the report is advisory and can be stale by
// the time it is read.
func ComputeVinHealth(ctx context.Context, batchId int) (*VinHealthReport, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	batch, err := models.GetBatch(ctx, batchId)
	if err != nil {
		return nil, err
	}

	plans, err := models.GetVinPlansForBatch(ctx, batchId)
	if err != nil {
		return nil, err
	}

	report := &VinHealthReport{
		BatchId: batch.ID,
		BatchNo: batch.BatchNo,
		Summary: VinHealthSummary{
			TopShortages: make([]TopShortage, 0),
		},
		Results: make([]*VinHealthResult, 0, len(plans)),
	}
	if len(plans) == 0 {
		return report, nil
	}

	// resolve every car type in the plan up front so the pool can be
	// loaded in one query
	resolver := NewRequirementResolver(businessId)
	perCar := make(map[string]map[string]decimal.Decimal)
	skuSet := make(map[string]bool)
	for _, plan := range plans {
		requirements, err := resolver.Resolve(ctx, plan.CarCode)
		if err != nil {
			return nil, err
		}
		perCar[plan.CarCode] = requirements
		for sku := range requirements {
			skuSet[sku] = true
		}
	}
	skus := make([]string, 0, len(skuSet))
	for sku := range skuSet {
		skus = append(skus, sku)
	}

	pool, err := models.GetAvailableQuantities(ctx, businessId, skus)
	if err != nil {
		return nil, err
	}

	report.Results, report.Summary = SimulateVinAllocation(plans, perCar, pool)
	return report, nil
}
