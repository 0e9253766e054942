package workflow

import (
	"context"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/factory_backend/models"
)

// fakeRequirementSource serves mappings and boms from memory and counts
// lookups so memoization is observable.
type fakeRequirementSource struct {
	mappings     map[string][]*models.ZoneBomMapping
	boms         map[string]*models.Bom
	mappingCalls int
}

func (f *fakeRequirementSource) QualifyingMappings(_ context.Context, carCode string) ([]*models.ZoneBomMapping, error) {
	f.mappingCalls++
	return f.mappings[carCode], nil
}

func (f *fakeRequirementSource) BomsByCodes(_ context.Context, codes []string) (map[string]*models.Bom, error) {
	out := make(map[string]*models.Bom, len(codes))
	for _, code := range codes {
		if bom, ok := f.boms[code]; ok {
			out[code] = bom
		}
	}
	return out, nil
}

func mapping(zone, car, bomCode string) *models.ZoneBomMapping {
	return &models.ZoneBomMapping{ZoneCode: zone, CarCode: car, BomCode: bomCode, ConsumeOnCompletion: true}
}

func bom(code string, components ...models.BomComponent) *models.Bom {
	return &models.Bom{Code: code, Name: code, Components: components}
}

func TestRequirementResolver_SumsSameSkuAcrossBoms(t *testing.T) {
	source := &fakeRequirementSource{
		mappings: map[string][]*models.ZoneBomMapping{
			"SUV": {
				mapping("WELD", "SUV", "BOM-CHASSIS"),
				mapping("PAINT", "SUV", "BOM-BODY"),
			},
		},
		boms: map[string]*models.Bom{
			"BOM-CHASSIS": bom("BOM-CHASSIS",
				models.BomComponent{Sku: "BOLT-M8", Quantity: dec("8")},
				models.BomComponent{Sku: "FRAME", Quantity: dec("1")},
			),
			"BOM-BODY": bom("BOM-BODY",
				models.BomComponent{Sku: "BOLT-M8", Quantity: dec("4")},
				models.BomComponent{Sku: "PANEL", Quantity: dec("6")},
			),
		},
	}

	resolver := NewRequirementResolverWithSource(source)
	requirements, err := resolver.Resolve(context.Background(), "SUV")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(requirements) != 3 {
		t.Fatalf("expected 3 skus, got %d: %v", len(requirements), requirements)
	}
	if !requirements["BOLT-M8"].Equal(dec("12")) {
		t.Errorf("BOLT-M8 should sum across boms, got %s", requirements["BOLT-M8"])
	}
	if !requirements["FRAME"].Equal(dec("1")) || !requirements["PANEL"].Equal(dec("6")) {
		t.Errorf("unexpected quantities: %v", requirements)
	}
}

func TestRequirementResolver_DuplicateBomCountsOnce(t *testing.T) {
	// the same bom consumed in two zones is still one bom per unit
	source := &fakeRequirementSource{
		mappings: map[string][]*models.ZoneBomMapping{
			"SUV": {
				mapping("TRIM-1", "SUV", "BOM-TRIM"),
				mapping("TRIM-2", "SUV", "BOM-TRIM"),
			},
		},
		boms: map[string]*models.Bom{
			"BOM-TRIM": bom("BOM-TRIM", models.BomComponent{Sku: "CLIP", Quantity: dec("20")}),
		},
	}

	resolver := NewRequirementResolverWithSource(source)
	requirements, err := resolver.Resolve(context.Background(), "SUV")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !requirements["CLIP"].Equal(dec("20")) {
		t.Errorf("CLIP should count once, got %s", requirements["CLIP"])
	}
}

func TestRequirementResolver_MissingBomAbortsRun(t *testing.T) {
	source := &fakeRequirementSource{
		mappings: map[string][]*models.ZoneBomMapping{
			"SUV": {mapping("WELD", "SUV", "BOM-GONE")},
		},
		boms: map[string]*models.Bom{},
	}

	resolver := NewRequirementResolverWithSource(source)
	_, err := resolver.Resolve(context.Background(), "SUV")
	if err == nil {
		t.Fatal("expected error for mapping pointing at a deleted bom")
	}
	if !strings.Contains(err.Error(), "BOM-GONE") {
		t.Errorf("error should name the missing bom: %v", err)
	}
}

func TestRequirementResolver_NoMappingsResolvesEmpty(t *testing.T) {
	source := &fakeRequirementSource{
		mappings: map[string][]*models.ZoneBomMapping{},
		boms:     map[string]*models.Bom{},
	}

	resolver := NewRequirementResolverWithSource(source)
	requirements, err := resolver.Resolve(context.Background(), "TRUCK")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if requirements == nil || len(requirements) != 0 {
		t.Errorf("expected empty requirement map, got %v", requirements)
	}
}

func TestRequirementResolver_MemoizesPerCarType(t *testing.T) {
	source := &fakeRequirementSource{
		mappings: map[string][]*models.ZoneBomMapping{
			"SUV": {mapping("WELD", "SUV", "BOM-CHASSIS")},
		},
		boms: map[string]*models.Bom{
			"BOM-CHASSIS": bom("BOM-CHASSIS", models.BomComponent{Sku: "FRAME", Quantity: dec("1")}),
		},
	}

	resolver := NewRequirementResolverWithSource(source)
	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "SUV"); err != nil {
			t.Fatalf("Resolve #%d: %v", i+1, err)
		}
	}
	if source.mappingCalls != 1 {
		t.Errorf("expected one source lookup for repeated resolves, got %d", source.mappingCalls)
	}
}
