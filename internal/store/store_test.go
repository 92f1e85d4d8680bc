package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pawfund/internal/models"
	"pawfund/internal/store"
	"pawfund/internal/store/storetest"
)

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCampaign(t *testing.T, campaigns *store.CampaignStore, target string) models.Campaign {
	t.Helper()
	c, err := campaigns.CreateCampaign(context.Background(), models.NewCampaign{
		OwnerID:      "owner_1",
		PetReference: "pet_1",
		PetName:      "Milo",
		TargetAmount: amount(target),
		Deadline:     time.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	return c
}

func TestCreateCampaign(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)

	c := newCampaign(t, campaigns, "500.00")
	if !c.DonatedAmount.IsZero() || c.Paused {
		t.Fatalf("expected a fresh unpaused campaign, got %+v", c)
	}
	if !c.TargetAmount.Equal(amount("500")) {
		t.Fatalf("expected target 500, got %s", c.TargetAmount)
	}

	got, err := campaigns.GetCampaign(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.PetName != "Milo" || got.OwnerID != "owner_1" {
		t.Fatalf("unexpected campaign %+v", got)
	}
}

func TestCreateCampaignRejectsNonPositiveTarget(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)

	for _, target := range []string{"0", "-5", "10.001"} {
		_, err := campaigns.CreateCampaign(context.Background(), models.NewCampaign{
			OwnerID: "owner_1", PetReference: "pet_1", TargetAmount: amount(target), Deadline: time.Now().Add(time.Hour),
		})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("target %s: expected validation error, got %v", target, err)
		}
	}
}

func TestGetCampaignNotFound(t *testing.T) {
	db := storetest.NewDB(t)
	_, err := store.NewCampaignStore(db).GetCampaign(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyDeltaConcurrentIncrements(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	c := newCampaign(t, campaigns, "500.00")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := campaigns.ApplyDelta(context.Background(), c.ID, amount("12.50")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ApplyDelta: %v", err)
	}

	got, err := campaigns.GetCampaign(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if !got.DonatedAmount.Equal(amount("250")) {
		t.Fatalf("expected 250, got %s", got.DonatedAmount)
	}
}

func TestApplyDeltaNeverGoesNegative(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	c := newCampaign(t, campaigns, "100")

	if _, err := campaigns.ApplyDelta(context.Background(), c.ID, amount("40")); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	_, err := campaigns.ApplyDelta(context.Background(), c.ID, amount("-41"))
	if !errors.Is(err, models.ErrLedgerInconsistency) {
		t.Fatalf("expected ledger inconsistency, got %v", err)
	}

	got, _ := campaigns.GetCampaign(context.Background(), c.ID)
	if !got.DonatedAmount.Equal(amount("40")) {
		t.Fatalf("expected 40 to be untouched, got %s", got.DonatedAmount)
	}

	if _, err := campaigns.ApplyDelta(context.Background(), "missing", amount("1")); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyDeltaFractionalAmountsAreExact(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	ledger := store.NewLedger(db)
	ctx := context.Background()
	c := newCampaign(t, campaigns, "100")

	for i, v := range []string{"0.70", "0.10"} {
		if _, _, err := ledger.RecordConfirmed(ctx, c.ID, "", amount(v), fmt.Sprintf("pi_%d", i)); err != nil {
			t.Fatalf("RecordConfirmed %s: %v", v, err)
		}
		if _, err := campaigns.ApplyDelta(ctx, c.ID, amount(v)); err != nil {
			t.Fatalf("ApplyDelta %s: %v", v, err)
		}
	}

	got, err := campaigns.GetCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.DonatedAmount.String() != "0.8" {
		t.Fatalf("expected exactly 0.8, got %s", got.DonatedAmount)
	}
	drift, err := campaigns.AuditAggregates(ctx)
	if err != nil {
		t.Fatalf("AuditAggregates: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("expected the total to match the ledger, got %+v", drift)
	}

	for _, v := range []string{"-0.70", "-0.10"} {
		if _, err := campaigns.ApplyDelta(ctx, c.ID, amount(v)); err != nil {
			t.Fatalf("ApplyDelta %s: %v", v, err)
		}
	}
	got, _ = campaigns.GetCampaign(ctx, c.ID)
	if !got.DonatedAmount.IsZero() {
		t.Fatalf("expected 0 after reversing both deltas, got %s", got.DonatedAmount)
	}

	entries, err := ledger.ListByCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	if !sum.Equal(amount("0.80")) {
		t.Fatalf("expected ledger entries to sum to 0.80, got %s", sum)
	}
}

func TestUpdateMetadata(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	c := newCampaign(t, campaigns, "100")

	paused := true
	target := amount("150")
	got, err := campaigns.UpdateMetadata(context.Background(), c.ID, models.CampaignPatch{Paused: &paused, TargetAmount: &target})
	if err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if !got.Paused || !got.TargetAmount.Equal(target) {
		t.Fatalf("patch not applied: %+v", got)
	}

	donated := amount("1000")
	_, err = campaigns.UpdateMetadata(context.Background(), c.ID, models.CampaignPatch{DonatedAmount: &donated})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected donated amount edit to be refused, got %v", err)
	}
}

func TestRecordConfirmedIsIdempotent(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	ledger := store.NewLedger(db)
	c := newCampaign(t, campaigns, "500")

	first, created, err := ledger.RecordConfirmed(context.Background(), c.ID, "donor_a", amount("200"), "pi_1")
	if err != nil || !created {
		t.Fatalf("first RecordConfirmed: created=%v err=%v", created, err)
	}
	if first.Status != models.EntryConfirmed || first.Donor() != "donor_a" {
		t.Fatalf("unexpected entry %+v", first)
	}

	second, created, err := ledger.RecordConfirmed(context.Background(), c.ID, "donor_a", amount("200"), "pi_1")
	if err != nil {
		t.Fatalf("second RecordConfirmed: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected the existing entry, got created=%v id=%s", created, second.ID)
	}
}

func TestRecordConfirmedConcurrentSameReference(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	ledger := store.NewLedger(db)
	c := newCampaign(t, campaigns, "500")

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := map[string]bool{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, created, err := ledger.RecordConfirmed(context.Background(), c.ID, "", amount("5"), "pi_race")
			if err != nil {
				t.Errorf("RecordConfirmed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[entry.ID] = true
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 || len(ids) != 1 {
		t.Fatalf("expected exactly one entry, created=%d ids=%d", createdCount, len(ids))
	}
	entries, err := ledger.ListByCampaign(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if len(entries) != 1 || entries[0].DonorID != nil {
		t.Fatalf("expected one anonymous entry, got %+v", entries)
	}
}

func TestRecordConfirmedUnknownCampaign(t *testing.T) {
	db := storetest.NewDB(t)
	_, _, err := store.NewLedger(db).RecordConfirmed(context.Background(), "missing", "", amount("5"), "pi_x")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkRefunded(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	ledger := store.NewLedger(db)
	c := newCampaign(t, campaigns, "500")

	entry, _, err := ledger.RecordConfirmed(context.Background(), c.ID, "donor_a", amount("20"), "pi_1")
	if err != nil {
		t.Fatalf("RecordConfirmed: %v", err)
	}

	refunded, err := ledger.MarkRefunded(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("MarkRefunded: %v", err)
	}
	if refunded.Status != models.EntryRefunded || refunded.RefundedAt == nil {
		t.Fatalf("expected refunded entry, got %+v", refunded)
	}

	again, err := ledger.MarkRefunded(context.Background(), entry.ID)
	if !errors.Is(err, models.ErrAlreadyRefunded) {
		t.Fatalf("expected already refunded, got %v", err)
	}
	if again.ID != entry.ID {
		t.Fatalf("expected the entry back with the error, got %+v", again)
	}

	if _, err := ledger.MarkRefunded(context.Background(), "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByDonor(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	ledger := store.NewLedger(db)
	c := newCampaign(t, campaigns, "500")

	for i, donor := range []string{"donor_a", "donor_b", "donor_a"} {
		if _, _, err := ledger.RecordConfirmed(context.Background(), c.ID, donor, amount("5"), fmt.Sprintf("pi_%d", i)); err != nil {
			t.Fatalf("RecordConfirmed: %v", err)
		}
	}

	entries, err := ledger.ListByDonor(context.Background(), "donor_a")
	if err != nil {
		t.Fatalf("ListByDonor: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for donor_a, got %d", len(entries))
	}
}

func TestDeleteCampaignPolicy(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	ledger := store.NewLedger(db)
	ctx := context.Background()
	c := newCampaign(t, campaigns, "500")

	entry, _, _ := ledger.RecordConfirmed(ctx, c.ID, "donor_a", amount("30"), "pi_1")
	if _, err := campaigns.ApplyDelta(ctx, c.ID, entry.Amount); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	if err := campaigns.DeleteCampaign(ctx, c.ID); !errors.Is(err, models.ErrCampaignHasDonations) {
		t.Fatalf("expected deletion to be refused, got %v", err)
	}

	if _, err := ledger.MarkRefunded(ctx, entry.ID); err != nil {
		t.Fatalf("MarkRefunded: %v", err)
	}
	if _, err := campaigns.ApplyDelta(ctx, c.ID, entry.Amount.Neg()); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if err := campaigns.DeleteCampaign(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCampaign: %v", err)
	}

	if _, err := campaigns.GetCampaign(ctx, c.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected tombstoned campaign to be not found, got %v", err)
	}
	if _, err := campaigns.ApplyDelta(ctx, c.ID, amount("1")); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected delta on tombstoned campaign to be not found, got %v", err)
	}
	if err := campaigns.DeleteCampaign(ctx, c.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}

	entries, err := ledger.ListByCampaign(ctx, c.ID)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected the refunded entry to be retained, got %d entries, err=%v", len(entries), err)
	}
}

func TestAuditAndResync(t *testing.T) {
	db := storetest.NewDB(t)
	campaigns := store.NewCampaignStore(db)
	ledger := store.NewLedger(db)
	ctx := context.Background()
	c := newCampaign(t, campaigns, "500")

	if _, _, err := ledger.RecordConfirmed(ctx, c.ID, "", amount("75"), "pi_1"); err != nil {
		t.Fatalf("RecordConfirmed: %v", err)
	}

	drift, err := campaigns.AuditAggregates(ctx)
	if err != nil {
		t.Fatalf("AuditAggregates: %v", err)
	}
	if len(drift) != 1 || drift[0].CampaignID != c.ID || !drift[0].LedgerTotal.Equal(amount("75")) {
		t.Fatalf("expected one drifting campaign, got %+v", drift)
	}

	fixed, err := campaigns.ResyncAggregate(ctx, c.ID)
	if err != nil {
		t.Fatalf("ResyncAggregate: %v", err)
	}
	if !fixed.DonatedAmount.Equal(amount("75")) {
		t.Fatalf("expected 75 after resync, got %s", fixed.DonatedAmount)
	}

	drift, _ = campaigns.AuditAggregates(ctx)
	if len(drift) != 0 {
		t.Fatalf("expected no drift after resync, got %+v", drift)
	}
}

func TestFaultLog(t *testing.T) {
	db := storetest.NewDB(t)
	faults := store.NewFaultLog(db)
	ctx := context.Background()

	fault, err := faults.RecordFault(ctx, models.ReconciliationFault{
		Kind: models.FaultConfirmAggregate, CampaignID: "c1", EntryID: "e1", Delta: amount("10"), Detail: "boom",
	})
	if err != nil {
		t.Fatalf("RecordFault: %v", err)
	}

	open, err := faults.ListOpen(ctx)
	if err != nil || len(open) != 1 || open[0].ID != fault.ID {
		t.Fatalf("expected the fault to be open, got %+v err=%v", open, err)
	}

	if err := faults.Resolve(ctx, fault.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := faults.Resolve(ctx, fault.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected resolving twice to be not found, got %v", err)
	}
	open, _ = faults.ListOpen(ctx)
	if len(open) != 0 {
		t.Fatalf("expected no open faults, got %+v", open)
	}
}
