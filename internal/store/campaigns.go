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

const campaignColumns = `id, owner_id, pet_reference, pet_name, image_url, description, long_description,
	target_cents, donated_cents, deadline, paused, created_at, updated_at, deleted_at`

// CampaignStore holds campaign metadata and the cached donated total.
type CampaignStore struct {
	db *sqlx.DB
}

func NewCampaignStore(db *sqlx.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

func (s *CampaignStore) CreateCampaign(ctx context.Context, n models.NewCampaign) (models.Campaign, error) {
	if err := n.Validate(); err != nil {
		return models.Campaign{}, err
	}

	now := utcNow()
	query := s.db.Rebind(`
		INSERT INTO campaigns
		  (id, owner_id, pet_reference, pet_name, image_url, description, long_description,
		   target_cents, donated_cents, deadline, paused, created_at, updated_at)
		VALUES
		  (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
		RETURNING ` + campaignColumns)

	var row campaignRow
	err := s.db.GetContext(ctx, &row, query,
		uuid.NewString(), n.OwnerID, n.PetReference, n.PetName, n.ImageURL, n.Description, n.LongDescription,
		toCents(n.TargetAmount), n.Deadline.UTC(), false, now, now,
	)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	return row.model(), nil
}

// GetCampaign returns a live campaign. Tombstoned campaigns are NotFound.
func (s *CampaignStore) GetCampaign(ctx context.Context, id string) (models.Campaign, error) {
	var row campaignRow
	query := s.db.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ? AND deleted_at IS NULL`)
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, fmt.Errorf("%w: campaign %s", models.ErrNotFound, id)
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return row.model(), nil
}

// UpdateMetadata writes the non-nil fields of patch. Concurrent edits are
// last-writer-wins per column; donated_cents is never touched here.
func (s *CampaignStore) UpdateMetadata(ctx context.Context, id string, patch models.CampaignPatch) (models.Campaign, error) {
	if err := patch.Validate(); err != nil {
		return models.Campaign{}, err
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.TargetAmount != nil {
		set("target_cents", toCents(*patch.TargetAmount))
	}
	if patch.Deadline != nil {
		set("deadline", patch.Deadline.UTC())
	}
	if patch.Paused != nil {
		set("paused", *patch.Paused)
	}
	if patch.PetName != nil {
		set("pet_name", *patch.PetName)
	}
	if patch.ImageURL != nil {
		set("image_url", *patch.ImageURL)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.LongDescription != nil {
		set("long_description", *patch.LongDescription)
	}
	set("updated_at", utcNow())
	args = append(args, id)

	query := s.db.Rebind(`UPDATE campaigns SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND deleted_at IS NULL RETURNING ` + campaignColumns)

	var row campaignRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, fmt.Errorf("%w: campaign %s", models.ErrNotFound, id)
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("update campaign: %w", err)
	}
	return row.model(), nil
}

// ApplyDelta adds delta to donated_cents in a single UPDATE, so concurrent
// deltas commute and none is lost. A delta that would take the total below
// zero is refused with ErrLedgerInconsistency.
func (s *CampaignStore) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (models.Campaign, error) {
	query := s.db.Rebind(`
		UPDATE campaigns
		SET donated_cents = donated_cents + ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND donated_cents + ? >= 0
		RETURNING ` + campaignColumns)

	cents := toCents(delta)
	var row campaignRow
	err := s.db.GetContext(ctx, &row, query, cents, utcNow(), id, cents)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetCampaign(ctx, id); getErr != nil {
			return models.Campaign{}, getErr
		}
		return models.Campaign{}, fmt.Errorf("%w: delta %s would make campaign %s negative",
			models.ErrLedgerInconsistency, delta.String(), id)
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("apply delta: %w", err)
	}
	return row.model(), nil
}

// DeleteCampaign tombstones a campaign that has nothing raised. The row and
// its ledger entries stay for audit.
func (s *CampaignStore) DeleteCampaign(ctx context.Context, id string) error {
	now := utcNow()
	query := s.db.Rebind(`
		UPDATE campaigns SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND donated_cents = 0`)

	res, err := s.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetCampaign(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: campaign %s", models.ErrCampaignHasDonations, id)
	}
	return nil
}

// AuditAggregates lists every campaign, tombstoned or not, whose cached total
// differs from the sum of its confirmed ledger entries.
func (s *CampaignStore) AuditAggregates(ctx context.Context) ([]models.AggregateDrift, error) {
	query := `
		SELECT c.id AS campaign_id, c.donated_cents, CAST(COALESCE(SUM(d.amount_cents), 0) AS BIGINT) AS ledger_cents
		FROM campaigns c
		LEFT JOIN donations d ON d.campaign_id = c.id AND d.status = 'confirmed'
		GROUP BY c.id, c.donated_cents
		HAVING c.donated_cents <> COALESCE(SUM(d.amount_cents), 0)
		ORDER BY c.id`

	var rows []driftRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("audit aggregates: %w", err)
	}
	drift := make([]models.AggregateDrift, 0, len(rows))
	for _, r := range rows {
		drift = append(drift, models.AggregateDrift{
			CampaignID:    r.CampaignID,
			DonatedAmount: fromCents(r.DonatedCents),
			LedgerTotal:   fromCents(r.LedgerCents),
		})
	}
	return drift, nil
}

// ResyncAggregate recomputes donated_cents from the ledger in one statement.
// It is an operator repair; a confirmation racing with it can be counted twice.
func (s *CampaignStore) ResyncAggregate(ctx context.Context, id string) (models.Campaign, error) {
	query := s.db.Rebind(`
		UPDATE campaigns
		SET donated_cents = (
			SELECT CAST(COALESCE(SUM(d.amount_cents), 0) AS BIGINT) FROM donations d
			WHERE d.campaign_id = campaigns.id AND d.status = 'confirmed'
		), updated_at = ?
		WHERE id = ?
		RETURNING ` + campaignColumns)

	var row campaignRow
	err := s.db.GetContext(ctx, &row, query, utcNow(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, fmt.Errorf("%w: campaign %s", models.ErrNotFound, id)
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("resync campaign: %w", err)
	}
	return row.model(), nil
}
