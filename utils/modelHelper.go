package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/factory_backend/config"
)

type ModelChangeLocker interface {
	CheckLifecycleLock(context.Context) error
}

/* DB fetching */

// fetch model from db
// (ctx's business_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, businessId string, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	// preloading
	for _, field := range associations {
		dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch model and check if model is locked by its lifecycle state
func FetchModelForChange[T ModelChangeLocker](ctx context.Context, businessId string, id int, associations ...string) (*T, error) {
	result, err := FetchModel[T](ctx, businessId, id, associations...)
	if err != nil {
		return nil, err
	}
	if err := (*result).CheckLifecycleLock(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
