package models_test

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression: a packing list import books every valid row, reports every bad
// one with its workbook row number, and never lets a bad row take its
// neighbours down with it.
func TestImportPackingList_PartialSuccess(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationStack(t)

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Import Works",
		Email: "owner@import.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	if _, err := models.CreateItem(ctx, &models.NewItem{Sku: "ENG-2L", Name: "Engine 2.0L", Unit: "pcs"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if _, err := models.CreateBatch(ctx, &models.NewBatch{
		BatchNo: "B-IMP", Name: "Import run", CarCode: "SUV-X", TotalCars: 4,
		DeclaredItems: []models.NewDeclaredItem{{Sku: "ENG-2L", Quantity: decimal.NewFromInt(4)}},
	}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	result, err := models.ImportPackingList(ctx, &models.PackingListImportInput{
		FileName:   "PL-2026-031.xlsx",
		ImportedBy: "dock-office",
		Lines: []*models.PackingListLine{
			{Row: 2, Sku: "ENG-2L", Quantity: decimal.NewFromInt(5), Location: "WH1", BatchNo: "B-IMP"},
			{Row: 3, Sku: "ENG-2L", Quantity: decimal.NewFromInt(3), Location: "WH1"},
			{Row: 4, Sku: "GBX-6M", Quantity: decimal.NewFromInt(2), Location: "WH1"},
			{Row: 5, Sku: "ENG-2L", Quantity: decimal.Zero, Location: "WH1"},
			{Row: 6, Quantity: decimal.NewFromInt(2)},
			{Row: 7, Sku: "ENG-2L", Quantity: decimal.NewFromInt(1), Location: "WH1", BatchNo: "B-GHOST"},
		},
	})
	if err != nil {
		t.Fatalf("ImportPackingList: %v", err)
	}

	if result.Success {
		t.Fatal("expected Success=false with bad rows present")
	}
	if result.Stats.TotalRows != 6 || result.Stats.ImportedRows != 2 || result.Stats.SkippedRows != 4 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	if result.Stats.ItemsCreated != 0 {
		t.Fatalf("expected no auto-created items, got %d", result.Stats.ItemsCreated)
	}
	if result.Stats.QuantityReceived.Cmp(decimal.NewFromInt(8)) != 0 {
		t.Fatalf("expected 8 received, got %s", result.Stats.QuantityReceived)
	}

	wantErrors := map[int]string{
		4: "item not found: GBX-6M",
		5: "quantity must be positive",
		6: "Location failed on required; Sku failed on required",
		7: "batch not found: B-GHOST",
	}
	if len(result.Errors) != len(wantErrors) {
		t.Fatalf("expected %d row errors, got %+v", len(wantErrors), result.Errors)
	}
	for _, rowErr := range result.Errors {
		want, known := wantErrors[rowErr.Row]
		if !known {
			t.Fatalf("unexpected row in errors: %+v", rowErr)
		}
		if rowErr.Message != want {
			t.Fatalf("row %d: expected %q, got %q", rowErr.Row, want, rowErr.Message)
		}
	}

	// The two good rows landed where they said they would.
	record, err := models.GetBatchAllocation(ctx, "ENG-2L", "WH1")
	if err != nil {
		t.Fatalf("GetBatchAllocation: %v", err)
	}
	if record.Allocations["B-IMP"].Cmp(decimal.NewFromInt(5)) != 0 {
		t.Fatalf("expected 5 on B-IMP, got %v", record.Allocations)
	}
	if record.Allocations[models.UnassignedPool].Cmp(decimal.NewFromInt(3)) != 0 {
		t.Fatalf("expected 3 in the pool, got %v", record.Allocations)
	}
	onHand, err := models.GetOnHandQuantity(ctx, businessID, "ENG-2L", "WH1")
	if err != nil {
		t.Fatalf("GetOnHandQuantity: %v", err)
	}
	if onHand.Cmp(decimal.NewFromInt(8)) != 0 {
		t.Fatalf("expected raw 8, got %s", onHand)
	}

	// The import published one bulk event carrying the totals.
	msg := fetchOutboxMessage(t, ctx, businessID, models.ProductionReferenceTypePackingList, 0)
	var event models.PackingListImportedEvent
	if err := json.Unmarshal(msg.NewObj, &event); err != nil {
		t.Fatalf("unmarshal import event: %v", err)
	}
	if event.FileName != "PL-2026-031.xlsx" || event.ImportedBy != "dock-office" {
		t.Fatalf("unexpected event header: %+v", event)
	}
	if event.ImportedRows != 2 || event.SkippedRows != 4 {
		t.Fatalf("unexpected event totals: %+v", event)
	}
	if event.QuantityReceived.Cmp(decimal.NewFromInt(8)) != 0 {
		t.Fatalf("unexpected event quantity: %+v", event)
	}
}

// Regression: with auto-create on, unknown skus become items instead of row
// errors, and a missing name falls back to the sku.
func TestImportPackingList_AutoCreateItems(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationStack(t)

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Import Auto",
		Email: "owner@auto.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())

	result, err := models.ImportPackingList(ctx, &models.PackingListImportInput{
		FileName:        "PL-2026-032.xlsx",
		AutoCreateItems: true,
		Lines: []*models.PackingListLine{
			{Row: 2, Sku: "GBX-6M", Name: "Gearbox 6MT", Quantity: decimal.NewFromInt(4), Location: "WH1"},
			{Row: 3, Sku: "AXL-R", Quantity: decimal.NewFromInt(2), Location: "WH1"},
			{Row: 4, Sku: "GBX-6M", Quantity: decimal.NewFromInt(1), Location: "WH2"},
		},
	})
	if err != nil {
		t.Fatalf("ImportPackingList: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected clean import, got errors %+v", result.Errors)
	}
	if result.Stats.ImportedRows != 3 || result.Stats.ItemsCreated != 2 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	if len(result.CreatedSkus) != 2 || result.CreatedSkus[0] != "GBX-6M" || result.CreatedSkus[1] != "AXL-R" {
		t.Fatalf("unexpected created skus: %v", result.CreatedSkus)
	}

	gearbox, err := models.GetItemBySku(ctx, "GBX-6M")
	if err != nil {
		t.Fatalf("GetItemBySku GBX-6M: %v", err)
	}
	if gearbox.Name != "Gearbox 6MT" {
		t.Fatalf("expected given name, got %q", gearbox.Name)
	}
	axle, err := models.GetItemBySku(ctx, "AXL-R")
	if err != nil {
		t.Fatalf("GetItemBySku AXL-R: %v", err)
	}
	if axle.Name != "AXL-R" {
		t.Fatalf("expected name to fall back to sku, got %q", axle.Name)
	}
}
