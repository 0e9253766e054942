package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"bitbucket.org/mmdatafocus/factory_backend/workflow"
)

// health-report prints batch health from the command line, for cron mails and
// for checking a tenant without going through the API.
//
// Example:
//
//	go run ./cmd/health-report --business-id=...
//	go run ./cmd/health-report --business-id=... --batch=12 --vins
func main() {
	var (
		businessID = flag.String("business-id", "", "business id (required)")
		batchID    = flag.Int("batch", 0, "batch id (default: global summary over active batches)")
		withVins   = flag.Bool("vins", false, "with --batch: include the per-unit readiness walk")
		asJSON     = flag.Bool("json", false, "print the raw report as JSON")
	)
	flag.Parse()

	if *businessID == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		flag.Usage()
		os.Exit(2)
	}
	if *withVins && *batchID == 0 {
		fmt.Fprintln(os.Stderr, "--vins needs --batch")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, *businessID)
	ctx = utils.SetUserNameInContext(ctx, "health-report")

	if *batchID != 0 {
		printBatch(ctx, *batchID, *withVins, *asJSON)
		return
	}
	printGlobal(ctx, *asJSON)
}

func printGlobal(ctx context.Context, asJSON bool) {
	report, err := workflow.ComputeGlobalHealth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "global health: %v\n", err)
		os.Exit(1)
	}
	if asJSON {
		dumpJSON(report)
		return
	}

	fmt.Printf("STATUS: %s (batches=%d healthy=%d warning=%d critical=%d)\n",
		report.Status, report.TotalBatches, report.HealthyCount, report.WarningCount, report.CriticalCount)

	ids := make([]int, 0, len(report.Batches))
	for id := range report.Batches {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		b := report.Batches[id]
		fmt.Printf("  [%s] %s (id=%d cars=%d blocked=%d excess=%d)\n",
			b.Status, b.BatchNo, b.BatchId, b.TotalCars, b.BlockedCount, b.ExcessCount)
		for _, comp := range b.Components {
			if comp.Status == workflow.ComponentStatusOk {
				continue
			}
			fmt.Printf("      %-8s %s needed=%s consumed=%s available=%s shortfall=%s excess=%s\n",
				comp.Status, comp.Sku, comp.TotalNeeded.String(), comp.Consumed.String(),
				comp.Available.String(), comp.Shortfall.String(), comp.Excess.String())
		}
	}

	if report.CriticalCount > 0 {
		os.Exit(1)
	}
}

func printBatch(ctx context.Context, batchID int, withVins bool, asJSON bool) {
	report, err := workflow.ComputeBatchHealth(ctx, batchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch health: %v\n", err)
		os.Exit(1)
	}

	var vins *workflow.VinHealthReport
	if withVins {
		vins, err = workflow.ComputeVinHealth(ctx, batchID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vin health: %v\n", err)
			os.Exit(1)
		}
	}

	if asJSON {
		if vins != nil {
			dumpJSON(map[string]interface{}{"batch": report, "vins": vins})
		} else {
			dumpJSON(report)
		}
		return
	}

	fmt.Printf("BATCH %s (id=%d): %s cars=%d blocked=%d excess=%d\n",
		report.BatchNo, report.BatchId, report.Status, report.TotalCars,
		report.BlockedCount, report.ExcessCount)
	for _, comp := range report.Components {
		fmt.Printf("  %-8s %s needed=%s consumed=%s remaining=%s available=%s shortfall=%s excess=%s cars_done=%d\n",
			comp.Status, comp.Sku, comp.TotalNeeded.String(), comp.Consumed.String(),
			comp.Remaining.String(), comp.Available.String(), comp.Shortfall.String(),
			comp.Excess.String(), comp.CarsCompleted)
	}

	if vins != nil {
		fmt.Printf("UNITS: total=%d ready=%d blocked=%d\n",
			vins.Summary.TotalVins, vins.Summary.ReadyVins, vins.Summary.BlockedVins)
		for _, short := range vins.Summary.TopShortages {
			fmt.Printf("  short %s by %s (blocks %d units)\n",
				short.Sku, short.Shortfall.String(), short.VinCount)
		}
		for _, r := range vins.Results {
			if r.Status != workflow.VinStatusBlocked {
				continue
			}
			fmt.Printf("  BLOCKED %s (%s)\n", r.Vin, r.CarCode)
			for _, s := range r.Shortages {
				fmt.Printf("    %s required=%s available=%s short=%s\n",
					s.Sku, s.Required.String(), s.Available.String(), s.Shortfall.String())
			}
		}
	}

	if report.Status == workflow.BatchHealthCritical {
		os.Exit(1)
	}
}

func dumpJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
