package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
)

type PackingListLine struct {
	Row      int             `json:"row"`
	Sku      string          `json:"sku" validate:"required"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Location string          `json:"location" validate:"required"`
	BatchNo  string          `json:"batch_no"`
}

type PackingListImportInput struct {
	FileName        string
	DefaultBatchNo  string
	AutoCreateItems bool
	ImportedBy      string
	Lines           []*PackingListLine
}

type ImportRowError struct {
	Row     int    `json:"row"`
	Sku     string `json:"sku,omitempty"`
	Message string `json:"message"`
}

type ImportStats struct {
	TotalRows        int             `json:"total_rows"`
	ImportedRows     int             `json:"imported_rows"`
	SkippedRows      int             `json:"skipped_rows"`
	ItemsCreated     int             `json:"items_created"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
}

type PackingListImportResult struct {
	Success     bool             `json:"success"`
	FileName    string           `json:"file_name,omitempty"`
	CreatedSkus []string         `json:"created_skus,omitempty"`
	Errors      []ImportRowError `json:"errors"`
	Stats       ImportStats      `json:"stats"`
}

// PackingListImportedEvent is the outbox payload for a completed import.
// It is a bulk reference: downstream consumers get the totals, not the rows.
type PackingListImportedEvent struct {
	FileName         string          `json:"file_name"`
	ImportedBy       string          `json:"imported_by"`
	ImportedAt       time.Time       `json:"imported_at"`
	TotalRows        int             `json:"total_rows"`
	ImportedRows     int             `json:"imported_rows"`
	SkippedRows      int             `json:"skipped_rows"`
	ItemsCreated     int             `json:"items_created"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
}

func formatRowError(err error) string {
	fields := utils.ProcessValidationErrors(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msg := ""
	for _, k := range keys {
		if msg != "" {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed on %s", k, fields[k])
	}
	return msg
}

// ImportPackingList books every valid row and reports the rest. Rows are
// independent receipts, so a bad row never rolls back its neighbours.
func ImportPackingList(ctx context.Context, input *PackingListImportInput) (*PackingListImportResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if len(input.Lines) == 0 {
		return nil, errors.New("workbook has no data rows")
	}

	autoCreate := input.AutoCreateItems || config.AutoCreateImportItems()

	result := &PackingListImportResult{
		FileName: input.FileName,
		Errors:   []ImportRowError{},
	}
	result.Stats.TotalRows = len(input.Lines)
	result.Stats.QuantityReceived = decimal.Zero

	rowError := func(line *PackingListLine, message string) {
		result.Errors = append(result.Errors, ImportRowError{
			Row:     line.Row,
			Sku:     line.Sku,
			Message: message,
		})
	}

	for _, line := range input.Lines {
		if err := utils.ValidateStruct(line); err != nil {
			rowError(line, formatRowError(err))
			continue
		}
		if !line.Quantity.IsPositive() {
			rowError(line, "quantity must be positive")
			continue
		}

		batchNo := line.BatchNo
		if batchNo == "" {
			batchNo = input.DefaultBatchNo
		}

		if _, err := GetItemBySku(ctx, line.Sku); err != nil {
			if !errors.Is(err, utils.ErrorRecordNotFound) {
				rowError(line, err.Error())
				continue
			}
			if !autoCreate {
				rowError(line, "item not found: "+line.Sku)
				continue
			}
			name := line.Name
			if name == "" {
				name = line.Sku
			}
			if _, err := CreateItem(ctx, &NewItem{Sku: line.Sku, Name: name, Unit: "pcs"}); err != nil {
				rowError(line, "auto-create item: "+err.Error())
				continue
			}
			result.Stats.ItemsCreated++
			result.CreatedSkus = append(result.CreatedSkus, line.Sku)
		}

		_, err := ReceiveStock(ctx, &NewStockReceipt{
			Sku:      line.Sku,
			Location: line.Location,
			BatchNo:  batchNo,
			Quantity: line.Quantity,
			Reason:   "packing list " + input.FileName,
		})
		if err != nil {
			rowError(line, err.Error())
			continue
		}
		result.Stats.ImportedRows++
		result.Stats.QuantityReceived = result.Stats.QuantityReceived.Add(line.Quantity)
	}

	result.Stats.SkippedRows = result.Stats.TotalRows - result.Stats.ImportedRows
	result.Success = len(result.Errors) == 0

	if result.Stats.ImportedRows > 0 {
		importedBy := input.ImportedBy
		if importedBy == "" {
			importedBy, _ = utils.GetUserNameFromContext(ctx)
		}
		now := time.Now()
		event := PackingListImportedEvent{
			FileName:         input.FileName,
			ImportedBy:       importedBy,
			ImportedAt:       now,
			TotalRows:        result.Stats.TotalRows,
			ImportedRows:     result.Stats.ImportedRows,
			SkippedRows:      result.Stats.SkippedRows,
			ItemsCreated:     result.Stats.ItemsCreated,
			QuantityReceived: result.Stats.QuantityReceived,
		}
		db := config.GetDB()
		if err := PublishToProduction(ctx, db.WithContext(ctx), businessId, now, 0,
			ProductionReferenceTypePackingList, &event, nil, PubSubMessageActionCreate); err != nil {
			return nil, err
		}
	}

	return result, nil
}
