package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
)

func TestFormatRowError_SortedAndReadable(t *testing.T) {
	line := &PackingListLine{Row: 3, Quantity: decimal.NewFromInt(1)}
	err := utils.ValidateStruct(line)
	if err == nil {
		t.Fatal("expected validation error for a line without sku and location")
	}

	got := formatRowError(err)
	expected := "Location failed on required; Sku failed on required"
	if got != expected {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}

func TestValidateStruct_AcceptsCompleteLine(t *testing.T) {
	line := &PackingListLine{
		Row:      2,
		Sku:      "ENG-2L",
		Quantity: decimal.NewFromInt(4),
		Location: "WH1",
	}
	if err := utils.ValidateStruct(line); err != nil {
		t.Fatalf("expected valid line, got %v", err)
	}
}
