package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"pawfund/internal/models"
)

const faultColumns = `id, kind, campaign_id, entry_id, delta_cents, detail, created_at, resolved_at`

// FaultLog keeps the reconciliation faults an operator still has to look at.
type FaultLog struct {
	db *sqlx.DB
}

func NewFaultLog(db *sqlx.DB) *FaultLog {
	return &FaultLog{db: db}
}

func (f *FaultLog) RecordFault(ctx context.Context, fault models.ReconciliationFault) (models.ReconciliationFault, error) {
	if fault.ID == "" {
		fault.ID = uuid.NewString()
	}
	if fault.CreatedAt.IsZero() {
		fault.CreatedAt = utcNow()
	}

	query := f.db.Rebind(`
		INSERT INTO reconciliation_faults (id, kind, campaign_id, entry_id, delta_cents, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := f.db.ExecContext(ctx, query,
		fault.ID, fault.Kind, fault.CampaignID, fault.EntryID, toCents(fault.Delta), fault.Detail, fault.CreatedAt.UTC())
	if err != nil {
		return models.ReconciliationFault{}, fmt.Errorf("record fault: %w", err)
	}
	return fault, nil
}

// ListOpen returns unresolved faults, oldest first.
func (f *FaultLog) ListOpen(ctx context.Context) ([]models.ReconciliationFault, error) {
	var rows []faultRow
	query := `SELECT ` + faultColumns + ` FROM reconciliation_faults WHERE resolved_at IS NULL ORDER BY created_at, id`
	if err := f.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	faults := make([]models.ReconciliationFault, 0, len(rows))
	for _, r := range rows {
		fault := r.ReconciliationFault
		fault.Delta = fromCents(r.DeltaCents)
		faults = append(faults, fault)
	}
	return faults, nil
}

func (f *FaultLog) Resolve(ctx context.Context, id string) error {
	query := f.db.Rebind(`UPDATE reconciliation_faults SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`)
	res, err := f.db.ExecContext(ctx, query, utcNow(), id)
	if err != nil {
		return fmt.Errorf("resolve fault: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve fault: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: open fault %s", models.ErrNotFound, id)
	}
	return nil
}
