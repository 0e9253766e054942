package models

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ComponentConsumption reports how one component fared during a zone
// completion: what the boms asked for and what stock actually yielded.
type ComponentConsumption struct {
	Sku      string          `json:"sku"`
	Required decimal.Decimal `json:"required"`
	Consumed decimal.Decimal `json:"consumed"`
}

func (c ComponentConsumption) Short() bool {
	return c.Consumed.LessThan(c.Required)
}

// ConsumeForZoneCompletion drains stock for every bom the completed zone
// maps to the unit's car type, inside the caller's transaction. Needs are
// aggregated per sku first, so a sku shared by two boms is consumed in one
// pass and counts the unit once. Raw rows are walked oldest first; each
// take drains the batch's allocation before the unassigned pool and writes
// a negative ledger row per slice actually taken. Running short is not an
// error here; the caller decides how loudly to report it.
func ConsumeForZoneCompletion(ctx context.Context, tx *gorm.DB, event *ZoneCompletionEvent) ([]*ComponentConsumption, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	mappings, err := GetQualifyingZoneMappings(ctx, businessId, event.ZoneCode, event.CarCode)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return []*ComponentConsumption{}, nil
	}

	codes := make([]string, 0, len(mappings))
	for _, mapping := range mappings {
		codes = append(codes, mapping.BomCode)
	}
	boms, err := GetBomsByCodes(ctx, businessId, codes)
	if err != nil {
		return nil, err
	}

	needBySku := make(map[string]decimal.Decimal)
	order := make([]string, 0)
	for _, code := range codes {
		bom, found := boms[code]
		if !found {
			return nil, fmt.Errorf("bom %s not found for zone %s", code, event.ZoneCode)
		}
		for _, component := range bom.Components {
			if _, seen := needBySku[component.Sku]; !seen {
				order = append(order, component.Sku)
			}
			needBySku[component.Sku] = needBySku[component.Sku].Add(component.Quantity)
		}
	}

	results := make([]*ComponentConsumption, 0, len(order))
	for _, sku := range order {
		required := needBySku[sku]
		taken, err := consumeSkuTx(ctx, tx, businessId, sku, required, event)
		if err != nil {
			return nil, err
		}
		if err := applyConsumptionTx(tx, businessId, event.BatchId, sku, taken, true); err != nil {
			return nil, err
		}
		results = append(results, &ComponentConsumption{Sku: sku, Required: required, Consumed: taken})
	}
	return results, nil
}

// consumeSkuTx walks the sku's raw rows in id order and consumes from each
// until the need is met or rows run out.
func consumeSkuTx(ctx context.Context, tx *gorm.DB, businessId string, sku string, required decimal.Decimal, event *ZoneCompletionEvent) (decimal.Decimal, error) {
	need := required
	taken := decimal.Zero

	records, err := scanStockRecordsForConsumption(tx, businessId, sku)
	if err != nil {
		return taken, err
	}

	for _, record := range records {
		if !need.IsPositive() {
			break
		}
		fromBatch, fromPool, err := consumeFromLocationTx(tx, businessId, sku, record.Location, event.BatchNo, need)
		if err != nil {
			return taken, err
		}
		if fromBatch.IsPositive() {
			entry := &InventoryTransaction{
				BusinessId:    businessId,
				Sku:           sku,
				Location:      record.Location,
				BatchNo:       event.BatchNo,
				Vin:           event.Vin,
				ZoneCode:      event.ZoneCode,
				Type:          InventoryTransactionTypeConsumption,
				Quantity:      fromBatch.Neg(),
				Reason:        "zone completion",
				ReferenceType: ProductionReferenceTypeZoneCompletion,
				ReferenceId:   event.VinPlanId,
				CreatedBy:     event.CompletedBy,
			}
			if err := appendLedgerEntry(ctx, tx, entry); err != nil {
				return taken, err
			}
		}
		if fromPool.IsPositive() {
			entry := &InventoryTransaction{
				BusinessId:    businessId,
				Sku:           sku,
				Location:      record.Location,
				BatchNo:       UnassignedPool,
				Vin:           event.Vin,
				ZoneCode:      event.ZoneCode,
				Type:          InventoryTransactionTypeConsumption,
				Quantity:      fromPool.Neg(),
				Reason:        "zone completion",
				ReferenceType: ProductionReferenceTypeZoneCompletion,
				ReferenceId:   event.VinPlanId,
				CreatedBy:     event.CompletedBy,
			}
			if err := appendLedgerEntry(ctx, tx, entry); err != nil {
				return taken, err
			}
		}
		got := fromBatch.Add(fromPool)
		need = need.Sub(got)
		taken = taken.Add(got)
	}
	return taken, nil
}
