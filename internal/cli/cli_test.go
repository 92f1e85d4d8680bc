package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pawfund/internal/models"
	"pawfund/internal/store"
	"pawfund/internal/store/storetest"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(Environment{Stdout: &stdout, Stderr: &stderr}, args)
	return code, stdout.String(), stderr.String()
}

func TestAuditAndResync(t *testing.T) {
	dsn := storetest.MemoryDSN()
	db := storetest.Open(t, dsn)
	ctx := context.Background()

	campaigns := store.NewCampaignStore(db)
	c, err := campaigns.CreateCampaign(ctx, models.NewCampaign{
		OwnerID: "owner_1", PetReference: "pet_1", TargetAmount: decimal.NewFromInt(100), Deadline: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	if _, _, err := store.NewLedger(db).RecordConfirmed(ctx, c.ID, "", decimal.NewFromInt(40), "pi_1"); err != nil {
		t.Fatalf("RecordConfirmed: %v", err)
	}

	code, out, errOut := run(t, "--dsn", dsn, "audit")
	if code != 0 {
		t.Fatalf("audit exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, c.ID) || !strings.Contains(out, "-40.00") {
		t.Fatalf("expected drift for %s, got:\n%s", c.ID, out)
	}

	code, out, errOut = run(t, "--dsn", dsn, "resync", "--campaign", c.ID)
	if code != 0 {
		t.Fatalf("resync exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, "40.00") {
		t.Fatalf("unexpected resync output %q", out)
	}

	_, out, _ = run(t, "--dsn", dsn, "audit")
	if !strings.Contains(out, "match") {
		t.Fatalf("expected a clean audit, got:\n%s", out)
	}
}

func TestFaultsAndResolve(t *testing.T) {
	dsn := storetest.MemoryDSN()
	db := storetest.Open(t, dsn)

	fault, err := store.NewFaultLog(db).RecordFault(context.Background(), models.ReconciliationFault{
		Kind: models.FaultRefundAggregate, CampaignID: "c1", EntryID: "e1", Delta: decimal.NewFromInt(-5), Detail: "campaign gone",
	})
	if err != nil {
		t.Fatalf("RecordFault: %v", err)
	}

	code, out, errOut := run(t, "--dsn", dsn, "faults")
	if code != 0 || !strings.Contains(out, fault.ID) || !strings.Contains(out, "refund_aggregate") {
		t.Fatalf("faults exited %d: %s\n%s", code, errOut, out)
	}

	code, _, errOut = run(t, "--dsn", dsn, "resolve-fault", "--id", fault.ID)
	if code != 0 {
		t.Fatalf("resolve-fault exited %d: %s", code, errOut)
	}

	code, _, errOut = run(t, "--dsn", dsn, "resolve-fault", "--id", fault.ID)
	if code == 0 || !strings.Contains(errOut, "not found") {
		t.Fatalf("expected resolving twice to fail, got %d %q", code, errOut)
	}

	_, out, _ = run(t, "--dsn", dsn, "faults")
	if !strings.Contains(out, "no open") {
		t.Fatalf("expected no open faults, got:\n%s", out)
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	dsn := storetest.MemoryDSN()
	storetest.Open(t, dsn)

	for i := 0; i < 2; i++ {
		if code, _, errOut := run(t, "--dsn", dsn, "migrate"); code != 0 {
			t.Fatalf("migrate run %d exited %d: %s", i, code, errOut)
		}
	}
}

func TestRejectsUnsupportedDSN(t *testing.T) {
	code, _, errOut := run(t, "--dsn", "mysql://nope", "faults")
	if code == 0 || !strings.Contains(errOut, "unsupported DSN") {
		t.Fatalf("expected failure, got %d %q", code, errOut)
	}
}
