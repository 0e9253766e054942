package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

// ledger-reverse posts a compensating entry for one inventory transaction,
// for cases where the API is down or the operator is already in a shell.
// The reversal goes through the same model path as the endpoint, so the
// allocation maps move together with the ledger.
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	transactionID := flag.Int("transaction-id", 0, "Required: inventory_transactions.id to reverse")
	reason := flag.String("reason", "Manual ledger correction", "Reversal reason")
	dryRun := flag.Bool("dry-run", true, "Show the record only (no writes)")
	confirm := flag.String("confirm", "", "Type REVERSE to proceed when dry-run=false")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" || *transactionID <= 0 {
		fmt.Fprintln(os.Stderr, "--business-id and --transaction-id are required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "REVERSE" {
		fmt.Fprintln(os.Stderr, "set --confirm=REVERSE to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, *businessID)
	ctx = utils.SetUserNameInContext(ctx, "ledger-reverse")

	entry, err := models.GetInventoryTransaction(ctx, *transactionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "not found: %v\n", err)
		os.Exit(1)
	}
	printEntry(entry)

	if entry.IsReversal {
		fmt.Fprintln(os.Stderr, "record is itself a reversal; refusing")
		os.Exit(1)
	}
	if entry.ReversedByTransactionId != nil {
		fmt.Fprintf(os.Stderr, "already reversed by transaction %d; refusing\n", *entry.ReversedByTransactionId)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("dry run; pass --dry-run=false --confirm=REVERSE to post the reversal")
		return
	}

	reversal, err := models.ReverseInventoryTransaction(ctx, *transactionID, *reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reverse failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("reversal posted:")
	printEntry(reversal)
}

func printEntry(t *models.InventoryTransaction) {
	reversedBy := 0
	if t.ReversedByTransactionId != nil {
		reversedBy = *t.ReversedByTransactionId
	}
	fmt.Printf("id=%d business_id=%s sku=%s location=%s batch_no=%s vin=%s zone=%s type=%s qty=%s reason=%q reference=%s/%d is_reversal=%v reversed_by=%d created_at=%s\n",
		t.ID, t.BusinessId, t.Sku, t.Location, t.BatchNo, t.Vin, t.ZoneCode,
		t.Type, t.Quantity.String(), t.Reason, t.ReferenceType, t.ReferenceId,
		t.IsReversal, reversedBy, t.CreatedAt.Format("2006-01-02 15:04:05"))
}
