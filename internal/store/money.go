package store

import (
	"github.com/shopspring/decimal"

	"pawfund/internal/models"
)

// Money columns hold integer minor units. SQLite and libsql keep NUMERIC
// values as REAL, so anything summed in SQL has to be an integer to stay
// exact on every backend.

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

type campaignRow struct {
	models.Campaign
	TargetCents  int64 `db:"target_cents"`
	DonatedCents int64 `db:"donated_cents"`
}

func (r campaignRow) model() models.Campaign {
	c := r.Campaign
	c.TargetAmount = fromCents(r.TargetCents)
	c.DonatedAmount = fromCents(r.DonatedCents)
	return c
}

type entryRow struct {
	models.DonationEntry
	AmountCents int64 `db:"amount_cents"`
}

func (r entryRow) model() models.DonationEntry {
	e := r.DonationEntry
	e.Amount = fromCents(r.AmountCents)
	return e
}

func entries(rows []entryRow) []models.DonationEntry {
	out := make([]models.DonationEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

type faultRow struct {
	models.ReconciliationFault
	DeltaCents int64 `db:"delta_cents"`
}

type driftRow struct {
	CampaignID   string `db:"campaign_id"`
	DonatedCents int64  `db:"donated_cents"`
	LedgerCents  int64  `db:"ledger_cents"`
}
