package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func acquireInventoryRebuildLock(db *gorm.DB, businessId string) error {
	lockName := fmt.Sprintf("inv_rebuild:%s", businessId)
	var ok int
	if err := db.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire rebuild lock for business_id=%s", businessId)
	}
	return nil
}

func releaseInventoryRebuildLock(db *gorm.DB, businessId string) {
	lockName := fmt.Sprintf("inv_rebuild:%s", businessId)
	var _ok int
	_ = db.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

type RebuildReport struct {
	OrphansAdopted int `json:"orphans_adopted"`
	RecordsSynced  int `json:"records_synced"`
}

// RebuildExpectedFromAllocations repairs the raw layer for a whole business.
// Orphan raw rows are first adopted into the unassigned pool so real stock
// survives the pass, then every raw row is overwritten from its allocation
// record's total. Serialized per business with a named lock so two rebuilds
// cannot interleave.
func RebuildExpectedFromAllocations(ctx context.Context, logger *logrus.Logger) (*RebuildReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if logger == nil {
		logger = config.GetLogger()
	}

	db := config.GetDB()
	if err := acquireInventoryRebuildLock(db, businessId); err != nil {
		return nil, err
	}
	defer releaseInventoryRebuildLock(db, businessId)

	logger.WithFields(logrus.Fields{
		"business_id": businessId,
	}).Info("inv.rebuild.start")

	adopted, err := models.AdoptOrphanRawRows(ctx)
	if err != nil {
		return nil, err
	}
	synced, err := models.SyncExpectedFromBatchAllocations(ctx)
	if err != nil {
		return nil, err
	}

	report := &RebuildReport{
		OrphansAdopted: adopted,
		RecordsSynced:  synced,
	}

	logger.WithFields(logrus.Fields{
		"business_id":     businessId,
		"orphans_adopted": report.OrphansAdopted,
		"records_synced":  report.RecordsSynced,
	}).Info("inv.rebuild.end")

	return report, nil
}
