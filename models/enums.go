package models

type BatchStatus string

const (
	BatchStatusPlanning   BatchStatus = "planning"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

func (e BatchStatus) IsValid() bool {
	switch e {
	case BatchStatusPlanning, BatchStatusInProgress, BatchStatusCompleted, BatchStatusCancelled:
		return true
	}
	return false
}

type VinBuildStatus string

const (
	VinBuildStatusReady   VinBuildStatus = "ready"
	VinBuildStatusBlocked VinBuildStatus = "blocked"
)

type ComponentHealthStatus string

const (
	ComponentHealthStatusOk      ComponentHealthStatus = "ok"
	ComponentHealthStatusExcess  ComponentHealthStatus = "excess"
	ComponentHealthStatusBlocked ComponentHealthStatus = "blocked"
)

type BatchHealthStatus string

const (
	BatchHealthStatusHealthy  BatchHealthStatus = "healthy"
	BatchHealthStatusWarning  BatchHealthStatus = "warning"
	BatchHealthStatusCritical BatchHealthStatus = "critical"
)

type InventoryTransactionType string

const (
	InventoryTransactionTypeReceipt     InventoryTransactionType = "receipt"
	InventoryTransactionTypeConsumption InventoryTransactionType = "consumption"
	InventoryTransactionTypeAdjustment  InventoryTransactionType = "adjustment"
	InventoryTransactionTypeTransfer    InventoryTransactionType = "transfer"
	InventoryTransactionTypeZero        InventoryTransactionType = "zero"
	InventoryTransactionTypeCount       InventoryTransactionType = "count"
)

func (e InventoryTransactionType) IsValid() bool {
	switch e {
	case InventoryTransactionTypeReceipt, InventoryTransactionTypeConsumption,
		InventoryTransactionTypeAdjustment, InventoryTransactionTypeTransfer,
		InventoryTransactionTypeZero, InventoryTransactionTypeCount:
		return true
	}
	return false
}

// reference types carried on outbox rows and ledger entries
type ProductionReferenceType string

const (
	ProductionReferenceTypeZoneCompletion  ProductionReferenceType = "ZC"
	ProductionReferenceTypeBatchActivated  ProductionReferenceType = "BA"
	ProductionReferenceTypeBatchCompleted  ProductionReferenceType = "BC"
	ProductionReferenceTypeStockZeroed     ProductionReferenceType = "SZ"
	ProductionReferenceTypeAllocationMoved ProductionReferenceType = "AT"
	ProductionReferenceTypePackingList     ProductionReferenceType = "PL"
)

func (e ProductionReferenceType) IsValid() bool {
	switch e {
	case ProductionReferenceTypeZoneCompletion, ProductionReferenceTypeBatchActivated,
		ProductionReferenceTypeBatchCompleted, ProductionReferenceTypeStockZeroed,
		ProductionReferenceTypeAllocationMoved, ProductionReferenceTypePackingList:
		return true
	}
	return false
}

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionUpdate PubSubMessageAction = "U"
	PubSubMessageActionDelete PubSubMessageAction = "D"
)
