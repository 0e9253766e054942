package models

import (
	"context"

	"github.com/google/uuid"
)

// embedding struct will receive ID field
type HasId struct {
	ID int `json:"id"`
}

type HasUid struct {
	ID uuid.UUID `json:"id"`
}

type AllBusiness struct {
	HasUid
	LogoUrl  string `json:"logo_url"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	IsActive bool   `json:"is_active"`
}

type AllItem struct {
	HasId
	Sku      string `json:"sku"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	IsActive bool   `json:"is_active"`
}

type AllBom struct {
	HasId
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type AllCarType struct {
	HasId
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type AllZone struct {
	HasId
	Code     string `json:"code"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	IsActive bool   `json:"is_active"`
}

type AllBatch struct {
	HasId
	BatchNo   string      `json:"batch_no"`
	Name      string      `json:"name"`
	CarCode   string      `json:"car_code"`
	TotalCars int         `json:"total_cars"`
	Status    BatchStatus `json:"status"`
}

// ListAllBusiness is the tenant picker list. Admin scope, so it is cached
// without a business id and invalidated by ClearRedisAdmin on writes.
func ListAllBusiness(ctx context.Context) ([]*AllBusiness, error) {
	return ListAllAdmin[Business, AllBusiness](ctx)
}

func ListAllItem(ctx context.Context) ([]*AllItem, error) {
	return ListAllResource[Item, AllItem](ctx)
}

func ListAllBom(ctx context.Context) ([]*AllBom, error) {
	return ListAllResource[Bom, AllBom](ctx)
}

func ListAllCarType(ctx context.Context) ([]*AllCarType, error) {
	return ListAllResource[CarType, AllCarType](ctx)
}

func ListAllZone(ctx context.Context) ([]*AllZone, error) {
	return ListAllResource[Zone, AllZone](ctx, "sequence")
}

func ListAllBatch(ctx context.Context) ([]*AllBatch, error) {
	return ListAllResource[Batch, AllBatch](ctx)
}
