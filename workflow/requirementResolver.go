package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
)

// RequirementSource supplies the mapping and bom lookups the resolver
// expands. The production source reads through the models layer and its
// redis cache; tests substitute an in memory one.
type RequirementSource interface {
	QualifyingMappings(ctx context.Context, carCode string) ([]*models.ZoneBomMapping, error)
	BomsByCodes(ctx context.Context, codes []string) (map[string]*models.Bom, error)
}

type dbRequirementSource struct {
	businessId string
}

func (s dbRequirementSource) QualifyingMappings(ctx context.Context, carCode string) ([]*models.ZoneBomMapping, error) {
	return models.GetQualifyingMappings(ctx, s.businessId, carCode)
}

func (s dbRequirementSource) BomsByCodes(ctx context.Context, codes []string) (map[string]*models.Bom, error) {
	return models.GetBomsByCodes(ctx, s.businessId, codes)
}

// RequirementResolver expands a car type code into the per unit component
// quantities its qualifying zone mappings imply. Results are memoized for
// the lifetime of the resolver; health runs create one resolver each and
// never share it across runs, so a run sees one consistent snapshot.
type RequirementResolver struct {
	source RequirementSource
	perCar map[string]map[string]decimal.Decimal
}

func NewRequirementResolver(businessId string) *RequirementResolver {
	return NewRequirementResolverWithSource(dbRequirementSource{businessId: businessId})
}

func NewRequirementResolverWithSource(source RequirementSource) *RequirementResolver {
	return &RequirementResolver{
		source: source,
		perCar: make(map[string]map[string]decimal.Decimal),
	}
}

// Resolve returns sku -> required quantity for one unit of the car type.
// A car type with no qualifying mappings resolves to an empty map. A
// mapping pointing at a bom that no longer exists aborts the whole run.
func (r *RequirementResolver) Resolve(ctx context.Context, carCode string) (map[string]decimal.Decimal, error) {
	if cached, ok := r.perCar[carCode]; ok {
		return cached, nil
	}

	mappings, err := r.source.QualifyingMappings(ctx, carCode)
	if err != nil {
		return nil, err
	}

	requirements := make(map[string]decimal.Decimal)
	if len(mappings) == 0 {
		r.perCar[carCode] = requirements
		return requirements, nil
	}

	// the same bom mapped in several zones counts once per unit
	codes := make([]string, 0, len(mappings))
	for _, mapping := range mappings {
		codes = append(codes, mapping.BomCode)
	}
	codes = utils.UniqueSlice(codes)

	boms, err := r.source.BomsByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}

	for _, code := range codes {
		bom, found := boms[code]
		if !found {
			return nil, fmt.Errorf("bom %s not found for car type %s", code, carCode)
		}
		for _, component := range bom.Components {
			requirements[component.Sku] = requirements[component.Sku].Add(component.Quantity)
		}
	}

	r.perCar[carCode] = requirements
	return requirements, nil
}
