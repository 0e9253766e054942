package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunReconciliationChecks writes mismatch rows to reconciliation_reports.
// This is intended to be run on a schedule (nightly) or via an admin trigger.
func RunReconciliationChecks(ctx context.Context, db *gorm.DB, logger *logrus.Logger, businessId string) (*models.ReconciliationSummary, error) {
	// Delegate to the models-level implementation to avoid package cycles.
	summary, err := models.RunReconciliationChecks(ctx, businessId)
	if err != nil {
		return nil, err
	}
	if logger != nil && summary.TotalGaps() > 0 {
		logger.WithFields(logrus.Fields{
			"field":       "ReconciliationChecks",
			"business_id": businessId,
			"gaps":        summary.TotalGaps(),
		}).Warn("reconciliation found drift")
	}
	return summary, nil
}
