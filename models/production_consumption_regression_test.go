package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"bitbucket.org/mmdatafocus/factory_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Regression: the full consumption path. A unit passing a consuming zone must
// drain its bom components batch-first then pool, book one ledger row per
// slice, and move the batch requirement counters, with a shortfall warning
// instead of a failure when stock runs out.
func TestZoneCompletionConsumption_EndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationStack(t)

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Assembly Plant Co",
		Email: "owner@assembly.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	for _, item := range []models.NewItem{
		{Sku: "ENG-2L", Name: "Engine 2.0L", Unit: "pcs"},
		{Sku: "WHL-17", Name: "Wheel 17in", Unit: "pcs"},
	} {
		item := item
		if _, err := models.CreateItem(ctx, &item); err != nil {
			t.Fatalf("CreateItem %s: %v", item.Sku, err)
		}
	}
	if _, err := models.CreateZone(ctx, &models.NewZone{Code: "Z3", Name: "Final Assembly", Sequence: 30}); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	if _, err := models.CreateCarType(ctx, &models.NewCarType{Code: "SUV-X", Name: "SUV X"}); err != nil {
		t.Fatalf("CreateCarType: %v", err)
	}
	if _, err := models.CreateBom(ctx, &models.NewBom{
		Code: "BOM-ASSY",
		Name: "Final Assembly BOM",
		Components: []models.NewBomComponent{
			{Sku: "ENG-2L", Quantity: decimal.NewFromInt(1)},
			{Sku: "WHL-17", Quantity: decimal.NewFromInt(4)},
		},
	}); err != nil {
		t.Fatalf("CreateBom: %v", err)
	}
	if _, err := models.CreateZoneBomMapping(ctx, &models.NewZoneBomMapping{
		ZoneCode:            "Z3",
		CarCode:             "SUV-X",
		BomCode:             "BOM-ASSY",
		ConsumeOnCompletion: true,
	}); err != nil {
		t.Fatalf("CreateZoneBomMapping: %v", err)
	}

	batch, err := models.CreateBatch(ctx, &models.NewBatch{
		BatchNo:   "B-2026-01",
		Name:      "January SUV run",
		CarCode:   "SUV-X",
		TotalCars: 2,
		DeclaredItems: []models.NewDeclaredItem{
			{Sku: "ENG-2L", Quantity: decimal.NewFromInt(2)},
			{Sku: "WHL-17", Quantity: decimal.NewFromInt(8)},
		},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if _, err := models.AddVinPlans(ctx, batch.ID, []*models.NewVinPlan{
		{Vin: "VIN00001"},
		{Vin: "VIN00002"},
	}); err != nil {
		t.Fatalf("AddVinPlans: %v", err)
	}

	activated, err := models.ActivateBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ActivateBatch: %v", err)
	}
	if activated.Status != models.BatchStatusInProgress {
		t.Fatalf("expected in_progress after activation, got %s", activated.Status)
	}

	requirements, err := models.GetBatchRequirements(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatchRequirements: %v", err)
	}
	if len(requirements) != 2 {
		t.Fatalf("expected 2 requirement rows after activation, got %d", len(requirements))
	}
	for _, requirement := range requirements {
		if requirement.Consumed.Cmp(decimal.Zero) != 0 || requirement.Remaining.Cmp(requirement.TotalNeeded) != 0 {
			t.Fatalf("fresh requirement should be untouched: %+v", requirement)
		}
	}

	logger := logrus.New()
	db := config.GetDB()

	// Process the activation event the way the worker does.
	baMsg := fetchOutboxMessage(t, ctx, businessID, models.ProductionReferenceTypeBatchActivated, batch.ID)
	txBA := db.Begin()
	if err := workflow.ProcessBatchActivatedWorkflow(ctx, txBA, logger, baMsg); err != nil {
		t.Fatalf("ProcessBatchActivatedWorkflow: %v", err)
	}
	if err := txBA.Commit().Error; err != nil {
		t.Fatalf("batch activated commit: %v", err)
	}

	// Stock: one engine earmarked for the batch, wheels only in the pool.
	if _, err := models.ReceiveStock(ctx, &models.NewStockReceipt{
		Sku: "ENG-2L", Location: "WH1", BatchNo: "B-2026-01",
		Quantity: decimal.NewFromInt(1), Reason: "packing list PL-77",
	}); err != nil {
		t.Fatalf("ReceiveStock ENG-2L: %v", err)
	}
	if _, err := models.ReceiveStock(ctx, &models.NewStockReceipt{
		Sku: "WHL-17", Location: "WH1",
		Quantity: decimal.NewFromInt(10), Reason: "surplus wheels",
	}); err != nil {
		t.Fatalf("ReceiveStock WHL-17: %v", err)
	}

	// First unit through final assembly.
	event, err := models.RecordZoneCompletion(ctx, &models.NewZoneCompletion{
		Vin: "VIN00001", ZoneCode: "Z3", CompletedBy: "scanner-3",
	})
	if err != nil {
		t.Fatalf("RecordZoneCompletion: %v", err)
	}
	if event.BatchNo != "B-2026-01" || event.CarCode != "SUV-X" {
		t.Fatalf("unexpected completion event: %+v", event)
	}

	plans, err := models.GetVinPlansForBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetVinPlansForBatch: %v", err)
	}
	if plans[0].LastZoneCode != "Z3" || plans[0].LastZoneAt == nil {
		t.Fatalf("expected VIN00001 stamped with Z3, got %+v", plans[0])
	}

	zcMsg := fetchOutboxMessage(t, ctx, businessID, models.ProductionReferenceTypeZoneCompletion, event.VinPlanId)
	txZC := db.Begin()
	if err := workflow.ProcessZoneCompletionWorkflow(ctx, txZC, logger, zcMsg); err != nil {
		t.Fatalf("ProcessZoneCompletionWorkflow: %v", err)
	}
	if err := txZC.Commit().Error; err != nil {
		t.Fatalf("zone completion commit: %v", err)
	}

	// Engine: 1 needed, 1 held by the batch. Wheels: 4 needed, pool only.
	engReq, err := models.GetBatchRequirementForSku(ctx, batch.ID, "ENG-2L")
	if err != nil {
		t.Fatalf("GetBatchRequirementForSku ENG-2L: %v", err)
	}
	if engReq.Consumed.Cmp(decimal.NewFromInt(1)) != 0 || engReq.Remaining.Cmp(decimal.NewFromInt(1)) != 0 || engReq.CarsCompleted != 1 {
		t.Fatalf("unexpected engine requirement after first unit: %+v", engReq)
	}
	whlReq, err := models.GetBatchRequirementForSku(ctx, batch.ID, "WHL-17")
	if err != nil {
		t.Fatalf("GetBatchRequirementForSku WHL-17: %v", err)
	}
	if whlReq.Consumed.Cmp(decimal.NewFromInt(4)) != 0 || whlReq.CarsCompleted != 1 {
		t.Fatalf("unexpected wheel requirement after first unit: %+v", whlReq)
	}

	engOnHand, err := models.GetOnHandQuantity(ctx, businessID, "ENG-2L", "WH1")
	if err != nil {
		t.Fatalf("GetOnHandQuantity ENG-2L: %v", err)
	}
	if engOnHand.Cmp(decimal.Zero) != 0 {
		t.Fatalf("expected engine stock fully consumed, got %s", engOnHand)
	}
	whlAlloc, err := models.GetBatchAllocation(ctx, "WHL-17", "WH1")
	if err != nil {
		t.Fatalf("GetBatchAllocation WHL-17: %v", err)
	}
	if whlAlloc.Allocations[models.UnassignedPool].Cmp(decimal.NewFromInt(6)) != 0 {
		t.Fatalf("expected 6 wheels left in the pool, got %v", whlAlloc.Allocations)
	}
	if whlAlloc.TotalAllocated.Cmp(decimal.NewFromInt(6)) != 0 {
		t.Fatalf("expected total_allocated 6, got %s", whlAlloc.TotalAllocated)
	}

	// Consumption slices: the engine came off the batch key, the wheels off
	// the pool key, one negative row each.
	var consumptionRows []models.InventoryTransaction
	if err := db.WithContext(ctx).
		Where("business_id = ? AND vin = ? AND type = ?", businessID, "VIN00001", models.InventoryTransactionTypeConsumption).
		Order("id").Find(&consumptionRows).Error; err != nil {
		t.Fatalf("fetch consumption rows: %v", err)
	}
	if len(consumptionRows) != 2 {
		t.Fatalf("expected 2 consumption rows for VIN00001, got %d", len(consumptionRows))
	}
	for _, row := range consumptionRows {
		if !row.Quantity.IsNegative() {
			t.Fatalf("consumption row should be negative: %+v", row)
		}
		if row.ZoneCode != "Z3" || row.CreatedBy != "scanner-3" {
			t.Fatalf("consumption row missing event attribution: %+v", row)
		}
	}
	if consumptionRows[0].Sku != "ENG-2L" || consumptionRows[0].BatchNo != "B-2026-01" {
		t.Fatalf("expected engine slice against the batch key, got %+v", consumptionRows[0])
	}
	if consumptionRows[1].Sku != "WHL-17" || consumptionRows[1].BatchNo != models.UnassignedPool {
		t.Fatalf("expected wheel slice against the pool key, got %+v", consumptionRows[1])
	}

	// Second unit: no engines anywhere. The completion still posts, the
	// requirement keeps what it got, and the shortfall is visible.
	event2, err := models.RecordZoneCompletion(ctx, &models.NewZoneCompletion{Vin: "VIN00002", ZoneCode: "Z3"})
	if err != nil {
		t.Fatalf("RecordZoneCompletion VIN00002: %v", err)
	}
	zcMsg2 := fetchOutboxMessage(t, ctx, businessID, models.ProductionReferenceTypeZoneCompletion, event2.VinPlanId)
	txZC2 := db.Begin()
	if err := workflow.ProcessZoneCompletionWorkflow(ctx, txZC2, logger, zcMsg2); err != nil {
		t.Fatalf("ProcessZoneCompletionWorkflow VIN00002: %v", err)
	}
	if err := txZC2.Commit().Error; err != nil {
		t.Fatalf("second zone completion commit: %v", err)
	}

	engReq2, err := models.GetBatchRequirementForSku(ctx, batch.ID, "ENG-2L")
	if err != nil {
		t.Fatalf("GetBatchRequirementForSku ENG-2L (2nd): %v", err)
	}
	if engReq2.Consumed.Cmp(decimal.NewFromInt(1)) != 0 || engReq2.CarsCompleted != 2 {
		t.Fatalf("expected engine shortfall to leave consumed=1 cars=2, got %+v", engReq2)
	}
	whlReq2, err := models.GetBatchRequirementForSku(ctx, batch.ID, "WHL-17")
	if err != nil {
		t.Fatalf("GetBatchRequirementForSku WHL-17 (2nd): %v", err)
	}
	if whlReq2.Consumed.Cmp(decimal.NewFromInt(8)) != 0 || whlReq2.Remaining.Cmp(decimal.Zero) != 0 {
		t.Fatalf("expected wheels fully consumed, got %+v", whlReq2)
	}

	// Ledger net and allocation map agree on the batch key.
	ledgerNet, err := models.GetLedgerNetQuantities(ctx, businessID, "B-2026-01")
	if err != nil {
		t.Fatalf("GetLedgerNetQuantities: %v", err)
	}
	allocated, err := models.GetBatchAllocatedQuantities(ctx, businessID, "B-2026-01")
	if err != nil {
		t.Fatalf("GetBatchAllocatedQuantities: %v", err)
	}
	if ledgerNet["ENG-2L"].Cmp(decimal.Zero) != 0 {
		t.Fatalf("expected engine batch net 0 in ledger, got %s", ledgerNet["ENG-2L"])
	}
	if qty, held := allocated["ENG-2L"]; held && qty.Cmp(decimal.Zero) != 0 {
		t.Fatalf("expected no engine allocation left for the batch, got %s", qty)
	}

	// The health report sees the drained pool.
	vinHealth, err := workflow.ComputeVinHealth(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ComputeVinHealth: %v", err)
	}
	if vinHealth.Summary.TotalVins != 2 {
		t.Fatalf("expected 2 vins in health report, got %d", vinHealth.Summary.TotalVins)
	}
	if vinHealth.Summary.BlockedVins == 0 {
		t.Fatalf("expected blocked vins with no engines left, got %+v", vinHealth.Summary)
	}
}

// Regression: re-delivering the same outbox message must not double consume.
// The claim goes through the durable idempotency key, same as the worker.
func TestZoneCompletionConsumption_DuplicateMessageIsSkipped(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationStack(t)

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Dedupe Plant Co",
		Email: "owner@dedupe.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	db := config.GetDB()

	tx1 := db.Begin()
	skip, err := workflow.BeginIdempotency(tx1.WithContext(ctx), businessID, "ZC", "41")
	if err != nil {
		t.Fatalf("BeginIdempotency: %v", err)
	}
	if skip {
		t.Fatal("first claim should not be skipped")
	}
	if err := workflow.MarkIdempotencySucceeded(tx1.WithContext(ctx), businessID, "ZC", "41"); err != nil {
		t.Fatalf("MarkIdempotencySucceeded: %v", err)
	}
	if err := tx1.Commit().Error; err != nil {
		t.Fatalf("commit first claim: %v", err)
	}

	tx2 := db.Begin()
	skip, err = workflow.BeginIdempotency(tx2.WithContext(ctx), businessID, "ZC", "41")
	if err != nil {
		t.Fatalf("BeginIdempotency redelivery: %v", err)
	}
	tx2.Rollback()
	if !skip {
		t.Fatal("redelivered message should be skipped after success")
	}

	// A different handler consuming the same message id is a separate claim.
	tx3 := db.Begin()
	skip, err = workflow.BeginIdempotency(tx3.WithContext(ctx), businessID, "BA", "41")
	if err != nil {
		t.Fatalf("BeginIdempotency other handler: %v", err)
	}
	tx3.Rollback()
	if skip {
		t.Fatal("a different handler must get its own claim")
	}

	// An in-flight claim blocks until it goes stale.
	tx4 := db.Begin()
	if _, err := workflow.BeginIdempotency(tx4.WithContext(ctx), businessID, "ZC", "42"); err != nil {
		t.Fatalf("BeginIdempotency started claim: %v", err)
	}
	if err := tx4.Commit().Error; err != nil {
		t.Fatalf("commit started claim: %v", err)
	}
	tx5 := db.Begin()
	_, err = workflow.BeginIdempotency(tx5.WithContext(ctx), businessID, "ZC", "42")
	tx5.Rollback()
	if err == nil {
		t.Fatal("expected in-progress claim to reject a concurrent delivery")
	}
}

func fetchOutboxMessage(t *testing.T, ctx context.Context, businessID string, referenceType models.ProductionReferenceType, referenceID int) config.PubSubMessage {
	t.Helper()
	db := config.GetDB()
	var record models.ProductionEventRecord
	if err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessID, referenceType, referenceID).
		Order("id DESC").
		First(&record).Error; err != nil {
		t.Fatalf("expected outbox record %s/%d: %v", referenceType, referenceID, err)
	}
	return models.ConvertToPubSubMessage(record)
}

// setupIntegrationStack boots throwaway MySQL and Redis containers, points
// the process at them and runs the migrations. Each test gets a clean stack.
func setupIntegrationStack(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "factory_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("factory-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("factory-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=factory_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
