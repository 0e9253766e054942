package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryTransaction is the append only movement ledger. Rows are never
// edited or deleted; a wrong row is corrected by a linked reversal pair.
type InventoryTransaction struct {
	ID            int                      `gorm:"primary_key" json:"id"`
	BusinessId    string                   `gorm:"size:64;index;not null" json:"business_id"`
	SequenceNo    int64                    `gorm:"index" json:"sequence_no"`
	Sku           string                   `gorm:"size:100;index;not null" json:"sku"`
	Location      string                   `gorm:"size:100" json:"location"`
	BatchNo       string                   `gorm:"size:100;index" json:"batch_no"`
	Vin           string                   `gorm:"size:100;index" json:"vin"`
	ZoneCode      string                   `gorm:"size:100" json:"zone_code"`
	Type          InventoryTransactionType `gorm:"size:20;not null" json:"type"`
	Quantity      decimal.Decimal          `gorm:"type:decimal(20,4);not null" json:"quantity"`
	IsOutgoing    bool                     `gorm:"not null" json:"is_outgoing"`
	Reason        string                   `gorm:"size:255" json:"reason"`
	ReferenceType ProductionReferenceType  `gorm:"size:10" json:"reference_type"`
	ReferenceId   int                      `json:"reference_id"`
	CreatedBy     string                   `gorm:"size:100" json:"created_by"`
	CorrelationId string                   `gorm:"size:64;index" json:"correlation_id"`

	IsReversal              bool       `gorm:"not null;default:false" json:"is_reversal"`
	ReversesTransactionId   *int       `gorm:"index" json:"reverses_transaction_id"`
	ReversedByTransactionId *int       `gorm:"index" json:"reversed_by_transaction_id"`
	ReversalReason          string     `gorm:"size:255" json:"reversal_reason"`
	ReversedAt              *time.Time `json:"reversed_at"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Only the reversal linkage may change after a row is written.
func (t *InventoryTransaction) BeforeUpdate(tx *gorm.DB) error {
	allowed := map[string]bool{
		"IsReversal":              true,
		"ReversesTransactionId":   true,
		"ReversedByTransactionId": true,
		"ReversalReason":          true,
		"ReversedAt":              true,
		"UpdatedAt":               true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only reversal linkage fields may be updated on inventory_transactions")
		}
	}
	return nil
}

func (t *InventoryTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("inventory transactions cannot be deleted")
}

// appendLedgerEntry fills the bookkeeping columns and writes the row inside
// the caller's transaction.
func appendLedgerEntry(ctx context.Context, tx *gorm.DB, entry *InventoryTransaction) error {
	if entry.BusinessId == "" {
		businessId, ok := utils.GetBusinessIdFromContext(ctx)
		if !ok || businessId == "" {
			return errors.New("business id is required")
		}
		entry.BusinessId = businessId
	}
	if entry.CorrelationId == "" {
		entry.CorrelationId = correlationIdFromContextOrNew(ctx)
	}
	if entry.CreatedBy == "" {
		if userName, ok := utils.GetUserNameFromContext(ctx); ok && userName != "" {
			entry.CreatedBy = userName
		} else {
			entry.CreatedBy = "system"
		}
	}
	if entry.SequenceNo == 0 {
		seqNo, err := utils.GetSequence[InventoryTransaction](ctx, entry.BusinessId)
		if err != nil {
			return err
		}
		entry.SequenceNo = seqNo
	}
	entry.IsOutgoing = entry.Quantity.IsNegative()
	return tx.Create(entry).Error
}

// ActiveLedgerEntries filters out reversal pairs, leaving the rows that
// still count toward net movement.
func ActiveLedgerEntries(dbCtx *gorm.DB) *gorm.DB {
	return dbCtx.Where("is_reversal = false AND reversed_by_transaction_id IS NULL")
}

type LedgerFilter struct {
	Sku     *string
	BatchNo *string
	Vin     *string
	Type    *InventoryTransactionType
	From    *time.Time
	To      *time.Time
	Limit   int
}

func ListInventoryTransactions(ctx context.Context, filter *LedgerFilter) ([]*InventoryTransaction, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*InventoryTransaction

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	limit := 100
	if filter != nil {
		if filter.Sku != nil && *filter.Sku != "" {
			dbCtx = dbCtx.Where("sku = ?", *filter.Sku)
		}
		if filter.BatchNo != nil && *filter.BatchNo != "" {
			dbCtx = dbCtx.Where("batch_no = ?", *filter.BatchNo)
		}
		if filter.Vin != nil && *filter.Vin != "" {
			dbCtx = dbCtx.Where("vin = ?", *filter.Vin)
		}
		if filter.Type != nil && *filter.Type != "" {
			dbCtx = dbCtx.Where("type = ?", *filter.Type)
		}
		if filter.From != nil {
			dbCtx = dbCtx.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			dbCtx = dbCtx.Where("created_at < ?", *filter.To)
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}

	// db query
	err := dbCtx.Order("id desc").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

type InventoryTransactionsConnection struct {
	Edges    []*InventoryTransactionsEdge `json:"edges"`
	PageInfo *PageInfo                    `json:"pageInfo"`
}

type InventoryTransactionsEdge Edge[InventoryTransaction]

func (t InventoryTransaction) GetCursor() string {
	return strconv.Itoa(t.ID)
}

// PaginateInventoryTransactions walks the ledger newest first. Rows are
// append only, so the id cursor stays stable across pages.
func PaginateInventoryTransactions(ctx context.Context, filter *LedgerFilter, after *string) (*InventoryTransactionsConnection, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&InventoryTransaction{}).Where("business_id = ?", businessId)
	limit := 100
	if filter != nil {
		if filter.Sku != nil && *filter.Sku != "" {
			dbCtx = dbCtx.Where("sku = ?", *filter.Sku)
		}
		if filter.BatchNo != nil && *filter.BatchNo != "" {
			dbCtx = dbCtx.Where("batch_no = ?", *filter.BatchNo)
		}
		if filter.Vin != nil && *filter.Vin != "" {
			dbCtx = dbCtx.Where("vin = ?", *filter.Vin)
		}
		if filter.Type != nil && *filter.Type != "" {
			dbCtx = dbCtx.Where("type = ?", *filter.Type)
		}
		if filter.From != nil {
			dbCtx = dbCtx.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			dbCtx = dbCtx.Where("created_at < ?", *filter.To)
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}

	edges, pageInfo, err := FetchPagePureCursor[InventoryTransaction](dbCtx, limit, after, "id", "<")
	if err != nil {
		return nil, err
	}
	var conn InventoryTransactionsConnection
	conn.PageInfo = pageInfo
	for _, edge := range edges {
		ledgerEdge := InventoryTransactionsEdge(edge)
		conn.Edges = append(conn.Edges, &ledgerEdge)
	}
	return &conn, nil
}

func GetInventoryTransaction(ctx context.Context, id int) (*InventoryTransaction, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[InventoryTransaction](ctx, businessId, id)
}

// GetLedgerNetQuantities sums active rows per sku for one batch key. The
// allocation audit compares this against the allocation maps.
func GetLedgerNetQuantities(ctx context.Context, businessId string, batchNo string) (map[string]decimal.Decimal, error) {
	db := config.GetDB()
	var rows []struct {
		Sku      string
		Quantity decimal.Decimal
	}
	dbCtx := db.WithContext(ctx).Model(&InventoryTransaction{}).
		Select("sku, COALESCE(SUM(quantity), 0) AS quantity").
		Where("business_id = ? AND batch_no = ?", businessId, batchNo)
	err := ActiveLedgerEntries(dbCtx).Group("sku").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		result[row.Sku] = row.Quantity
	}
	return result, nil
}

// ReverseInventoryTransaction writes the compensating row and undoes the
// original's stock effect in one transaction. A receipt reversal pulls the
// quantity back out (clamped to what is still there); a consumption
// reversal books it back in.
func ReverseInventoryTransaction(ctx context.Context, id int, reason string) (*InventoryTransaction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if reason == "" {
		return nil, errors.New("reversal reason is required")
	}

	original, err := utils.FetchModel[InventoryTransaction](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if original.IsReversal {
		return nil, errors.New("cannot reverse a reversal")
	}
	if original.ReversedByTransactionId != nil {
		return nil, errors.New("transaction already reversed")
	}
	if original.Quantity.IsZero() {
		return nil, errors.New("transaction has no quantity to reverse")
	}

	batchNo := original.BatchNo
	if batchNo == "" {
		batchNo = UnassignedPool
	}

	db := config.GetDB()
	tx := db.Begin()

	delta := original.Quantity.Neg()
	if delta.IsPositive() {
		_, err = addToAllocationTx(tx, businessId, original.Sku, original.Location, batchNo, delta)
	} else {
		_, _, err = removeFromAllocationTx(tx, businessId, original.Sku, original.Location, batchNo, delta.Neg(), false)
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	reversal := &InventoryTransaction{
		BusinessId:            businessId,
		Sku:                   original.Sku,
		Location:              original.Location,
		BatchNo:               original.BatchNo,
		Vin:                   original.Vin,
		ZoneCode:              original.ZoneCode,
		Type:                  original.Type,
		Quantity:              delta,
		Reason:                reason,
		ReferenceType:         original.ReferenceType,
		ReferenceId:           original.ReferenceId,
		IsReversal:            true,
		ReversesTransactionId: &original.ID,
	}
	if err := appendLedgerEntry(ctx, tx, reversal); err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now()
	err = tx.WithContext(ctx).Model(original).Updates(map[string]interface{}{
		"ReversedByTransactionId": &reversal.ID,
		"ReversalReason":          reason,
		"ReversedAt":              &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	return reversal, tx.Commit().Error
}
