package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pawfund/internal/models"
)

const entryColumns = `id, campaign_id, donor_id, amount_cents, payment_reference, status, created_at, refunded_at`

// Ledger is the append-mostly table of donations. Rows are inserted once,
// may flip once to refunded, and are never deleted.
type Ledger struct {
	db *sqlx.DB
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordConfirmed books a confirmed donation keyed by paymentReference. When
// the reference is already booked it returns the existing entry and
// created=false without writing anything. The unique constraint on
// payment_reference decides racing inserts.
func (l *Ledger) RecordConfirmed(ctx context.Context, campaignID, donorID string, amount decimal.Decimal, paymentReference string) (models.DonationEntry, bool, error) {
	if strings.TrimSpace(paymentReference) == "" {
		return models.DonationEntry{}, false, fmt.Errorf("%w: payment reference is required", models.ErrValidation)
	}
	if strings.TrimSpace(campaignID) == "" {
		return models.DonationEntry{}, false, fmt.Errorf("%w: campaign is required", models.ErrValidation)
	}
	if err := models.ValidateAmount("amount", amount); err != nil {
		return models.DonationEntry{}, false, err
	}

	// Tombstoned campaigns still accept bookings; only unknown ids are refused.
	var exists bool
	err := l.db.GetContext(ctx, &exists, l.db.Rebind(`SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = ?)`), campaignID)
	if err != nil {
		return models.DonationEntry{}, false, fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return models.DonationEntry{}, false, fmt.Errorf("%w: campaign %s", models.ErrNotFound, campaignID)
	}

	var donor *string
	if donorID != "" {
		donor = &donorID
	}

	query := l.db.Rebind(`
		INSERT INTO donations (id, campaign_id, donor_id, amount_cents, payment_reference, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_reference) DO NOTHING
		RETURNING ` + entryColumns)

	var row entryRow
	err = l.db.GetContext(ctx, &row, query,
		uuid.NewString(), campaignID, donor, toCents(amount), paymentReference, models.EntryConfirmed, utcNow(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := l.GetByReference(ctx, paymentReference)
		if getErr != nil {
			return models.DonationEntry{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return models.DonationEntry{}, false, fmt.Errorf("insert donation: %w", err)
	}
	return row.model(), true, nil
}

// MarkRefunded flips a confirmed entry to refunded. If the entry is already
// refunded the current row is returned together with ErrAlreadyRefunded.
func (l *Ledger) MarkRefunded(ctx context.Context, entryID string) (models.DonationEntry, error) {
	query := l.db.Rebind(`
		UPDATE donations SET status = ?, refunded_at = ?
		WHERE id = ? AND status = ?
		RETURNING ` + entryColumns)

	var row entryRow
	err := l.db.GetContext(ctx, &row, query, models.EntryRefunded, utcNow(), entryID, models.EntryConfirmed)
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := l.GetEntry(ctx, entryID)
		if getErr != nil {
			return models.DonationEntry{}, getErr
		}
		return existing, fmt.Errorf("%w: donation %s", models.ErrAlreadyRefunded, entryID)
	}
	if err != nil {
		return models.DonationEntry{}, fmt.Errorf("mark refunded: %w", err)
	}
	return row.model(), nil
}

func (l *Ledger) GetEntry(ctx context.Context, entryID string) (models.DonationEntry, error) {
	return l.getOne(ctx, `SELECT `+entryColumns+` FROM donations WHERE id = ?`, entryID)
}

func (l *Ledger) GetByReference(ctx context.Context, paymentReference string) (models.DonationEntry, error) {
	return l.getOne(ctx, `SELECT `+entryColumns+` FROM donations WHERE payment_reference = ?`, paymentReference)
}

func (l *Ledger) getOne(ctx context.Context, query, arg string) (models.DonationEntry, error) {
	var row entryRow
	err := l.db.GetContext(ctx, &row, l.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DonationEntry{}, fmt.Errorf("%w: donation %s", models.ErrNotFound, arg)
	}
	if err != nil {
		return models.DonationEntry{}, fmt.Errorf("get donation: %w", err)
	}
	return row.model(), nil
}

// ListByCampaign returns a campaign's donations, newest first.
func (l *Ledger) ListByCampaign(ctx context.Context, campaignID string) ([]models.DonationEntry, error) {
	var rows []entryRow
	query := l.db.Rebind(`SELECT ` + entryColumns + ` FROM donations WHERE campaign_id = ? ORDER BY created_at DESC, id`)
	if err := l.db.SelectContext(ctx, &rows, query, campaignID); err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	return entries(rows), nil
}

// ListByDonor returns one donor's donations, newest first.
func (l *Ledger) ListByDonor(ctx context.Context, donorID string) ([]models.DonationEntry, error) {
	var rows []entryRow
	query := l.db.Rebind(`SELECT ` + entryColumns + ` FROM donations WHERE donor_id = ? ORDER BY created_at DESC, id`)
	if err := l.db.SelectContext(ctx, &rows, query, donorID); err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	return entries(rows), nil
}
