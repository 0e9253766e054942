package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/factory_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func receiveStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockReceipt
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		record, err := models.ReceiveStock(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func removeAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.AllocationRemoval
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// strict=true refuses instead of clamping when the batch holds less
		// than the requested quantity.
		var removed decimal.Decimal
		var err error
		if c.Query("strict") == "true" {
			removed, err = models.RemoveFromBatchAllocationStrict(c.Request.Context(), &input)
		} else {
			removed, err = models.RemoveFromBatchAllocation(c.Request.Context(), &input)
		}
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sku":      input.Sku,
			"location": input.Location,
			"batch_no": input.BatchNo,
			"removed":  removed,
		})
	}
}

func transferAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.AllocationTransfer
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		record, err := models.TransferAllocation(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func recordPhysicalCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPhysicalCount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := models.RecordPhysicalCount(c.Request.Context(), &input)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func listAllocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := models.ListBatchAllocations(c.Request.Context(), optionalQuery(c, "sku"), optionalQuery(c, "location"))
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func getAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sku := c.Query("sku")
		location := c.Query("location")
		if sku == "" || location == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sku and location are required"})
			return
		}
		record, err := models.GetBatchAllocation(c.Request.Context(), sku, location)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func listRawInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		includeZero := c.Query("include_zero") == "true"
		rows, err := models.ListRawInventory(c.Request.Context(), optionalQuery(c, "sku"), optionalQuery(c, "location"), includeZero)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func listLedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.LedgerFilter{
			Sku:     optionalQuery(c, "sku"),
			BatchNo: optionalQuery(c, "batch_no"),
			Vin:     optionalQuery(c, "vin"),
		}
		if raw := c.Query("type"); raw != "" {
			t := models.InventoryTransactionType(raw)
			filter.Type = &t
		}
		// from/to are wall clock times in the business timezone.
		if c.Query("from") != "" || c.Query("to") != "" {
			business, err := models.GetBusiness(c.Request.Context())
			if err != nil {
				apiError(c, err)
				return
			}
			if raw := c.Query("from"); raw != "" {
				from, err := models.ParseDateString(raw, business.Timezone)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
					return
				}
				filter.From = &from
			}
			if raw := c.Query("to"); raw != "" {
				to, err := models.ParseDateString(raw, business.Timezone)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
					return
				}
				filter.To = &to
			}
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			filter.Limit = limit
		}
		// paged=true switches to the cursor connection for long ledgers.
		if c.Query("paged") == "true" || c.Query("after") != "" {
			conn, err := models.PaginateInventoryTransactions(c.Request.Context(), &filter, optionalQuery(c, "after"))
			if err != nil {
				apiError(c, err)
				return
			}
			c.JSON(http.StatusOK, conn)
			return
		}
		transactions, err := models.ListInventoryTransactions(c.Request.Context(), &filter)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, transactions)
	}
}

func getLedgerEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		transaction, err := models.GetInventoryTransaction(c.Request.Context(), id)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

type ledgerReversalRequest struct {
	Reason string `json:"reason"`
}

func reverseLedgerEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req ledgerReversalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reversal, err := models.ReverseInventoryTransaction(c.Request.Context(), id, req.Reason)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusCreated, reversal)
	}
}

func zeroBatchStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batchNo := c.Param("batchNo")
		if batchNo == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "batch no is required"})
			return
		}
		report, err := models.ZeroStockForBatch(c.Request.Context(), batchNo)
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func zeroUnassignedStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := models.ZeroUnassignedStock(c.Request.Context())
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// zeroAllStockHandler wipes every allocation for the business. Destructive
// enough to demand an explicit confirmation token.
func zeroAllStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("confirm") != "ZERO" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pass confirm=ZERO to zero all stock"})
			return
		}
		report, err := models.ZeroAllStock(c.Request.Context())
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func syncExpectedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		synced, err := models.SyncExpectedFromBatchAllocations(c.Request.Context())
		if err != nil {
			apiError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records_synced": synced})
	}
}

func registerInventoryRoutes(api *gin.RouterGroup) {
	api.POST("/inventory/receipts", receiveStockHandler())
	api.POST("/inventory/removals", removeAllocationHandler())
	api.POST("/inventory/transfers", transferAllocationHandler())
	api.POST("/inventory/counts", recordPhysicalCountHandler())
	api.GET("/inventory/allocations", listAllocationsHandler())
	api.GET("/inventory/allocation", getAllocationHandler())
	api.GET("/inventory/raw", listRawInventoryHandler())
	api.GET("/inventory/transactions", listLedgerHandler())
	api.GET("/inventory/transactions/:id", getLedgerEntryHandler())
	api.POST("/inventory/transactions/:id/reverse", reverseLedgerEntryHandler())
	api.POST("/inventory/zero/batch/:batchNo", zeroBatchStockHandler())
	api.POST("/inventory/zero/unassigned", zeroUnassignedStockHandler())
	api.POST("/inventory/zero/all", zeroAllStockHandler())
	api.POST("/inventory/sync-expected", syncExpectedHandler())
}
