package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAllocationMap_Total(t *testing.T) {
	m := AllocationMap{
		"B-2026-01":    decimal.NewFromInt(12),
		"B-2026-02":    decimal.RequireFromString("3.5"),
		UnassignedPool: decimal.RequireFromString("0.25"),
	}
	if got := m.Total().String(); got != "15.75" {
		t.Fatalf("expected total 15.75, got %s", got)
	}

	var empty AllocationMap
	if !empty.Total().IsZero() {
		t.Fatalf("expected zero total for nil map, got %s", empty.Total())
	}
}

func TestAllocationMap_ScanHandlesNullColumn(t *testing.T) {
	var m AllocationMap
	if err := m.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if m == nil || len(m) != 0 {
		t.Fatalf("expected empty map after scanning NULL, got %v", m)
	}

	if err := m.Scan([]byte(`{"unassigned":"7.5"}`)); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if m[UnassignedPool].String() != "7.5" {
		t.Fatalf("expected unassigned 7.5, got %v", m)
	}

	if err := m.Scan(42); err == nil {
		t.Fatal("expected error scanning an int, got nil")
	}
}

func TestAllocationMap_ValueNilIsEmptyObject(t *testing.T) {
	var m AllocationMap
	v, err := m.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "{}" {
		t.Fatalf("expected {} for nil map, got %v", v)
	}
}

func TestComponentConsumption_Short(t *testing.T) {
	full := ComponentConsumption{Sku: "ENG-2L", Required: decimal.NewFromInt(1), Consumed: decimal.NewFromInt(1)}
	if full.Short() {
		t.Fatal("fully consumed component reported short")
	}
	partial := ComponentConsumption{Sku: "WHL-17", Required: decimal.NewFromInt(4), Consumed: decimal.NewFromInt(3)}
	if !partial.Short() {
		t.Fatal("partially consumed component not reported short")
	}
	over := ComponentConsumption{Sku: "ECU-01", Required: decimal.NewFromInt(1), Consumed: decimal.NewFromInt(2)}
	if over.Short() {
		t.Fatal("over consumed component reported short")
	}
}
