package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventDonationConfirmed = "donation.confirmed"
	EventDonationRefunded  = "donation.refunded"
)

// DonationEvent is pushed to live progress subscribers of a campaign.
type DonationEvent struct {
	Type          string          `json:"type"`
	CampaignID    string          `json:"campaign_id"`
	EntryID       string          `json:"entry_id"`
	Amount        decimal.Decimal `json:"amount"`
	DonatedAmount decimal.Decimal `json:"donated_amount"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
