package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// We use 'db' tags for sqlx to map the snake_case columns onto our fields,
// and 'json' tags for what the API hands back to clients. Amounts are stored
// as minor units and converted by the store, so they carry no column.

// CampaignStatus is derived from paused and deadline, never stored.
type CampaignStatus string

const (
	CampaignActive  CampaignStatus = "active"
	CampaignPaused  CampaignStatus = "paused"
	CampaignExpired CampaignStatus = "expired"
)

// Campaign is a fundraiser for one pet. DonatedAmount is only ever changed
// through the store's ApplyDelta.
type Campaign struct {
	ID              string          `db:"id" json:"id"`
	OwnerID         string          `db:"owner_id" json:"owner_id"`
	PetReference    string          `db:"pet_reference" json:"pet_reference"`
	PetName         string          `db:"pet_name" json:"pet_name"`
	ImageURL        string          `db:"image_url" json:"image_url"`
	Description     string          `db:"description" json:"description"`
	LongDescription string          `db:"long_description" json:"long_description"`
	TargetAmount    decimal.Decimal `db:"-" json:"target_amount"`
	DonatedAmount   decimal.Decimal `db:"-" json:"donated_amount"`
	Deadline        time.Time       `db:"deadline" json:"deadline"`
	Paused          bool            `db:"paused" json:"paused"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time      `db:"deleted_at" json:"-"`
}

// StatusAt reports the campaign's state at now. An expired campaign stays
// expired whether or not it is also paused.
func (c Campaign) StatusAt(now time.Time) CampaignStatus {
	switch {
	case now.After(c.Deadline):
		return CampaignExpired
	case c.Paused:
		return CampaignPaused
	default:
		return CampaignActive
	}
}

// OwnedBy is true for the campaign owner and for admins.
func (c Campaign) OwnedBy(actor Actor) bool {
	return actor.Admin || (actor.ID != "" && actor.ID == c.OwnerID)
}

// NewCampaign holds the fields an owner supplies at creation.
type NewCampaign struct {
	OwnerID         string
	PetReference    string
	PetName         string
	ImageURL        string
	Description     string
	LongDescription string
	TargetAmount    decimal.Decimal
	Deadline        time.Time
}

func (n NewCampaign) Validate() error {
	if strings.TrimSpace(n.OwnerID) == "" {
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if strings.TrimSpace(n.PetReference) == "" {
		return fmt.Errorf("%w: pet reference is required", ErrValidation)
	}
	if n.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline is required", ErrValidation)
	}
	if err := ValidateAmount("target amount", n.TargetAmount); err != nil {
		return err
	}
	return nil
}

// CampaignPatch lists the editable campaign fields; nil means unchanged.
// DonatedAmount is only here so a request that names it can be refused.
type CampaignPatch struct {
	TargetAmount    *decimal.Decimal `json:"target_amount"`
	Deadline        *time.Time       `json:"deadline"`
	Paused          *bool            `json:"paused"`
	PetName         *string          `json:"pet_name"`
	ImageURL        *string          `json:"image_url"`
	Description     *string          `json:"description"`
	LongDescription *string          `json:"long_description"`
	DonatedAmount   *decimal.Decimal `json:"donated_amount"`
}

func (p CampaignPatch) Validate() error {
	if p.DonatedAmount != nil {
		return fmt.Errorf("%w: donated amount cannot be edited directly", ErrValidation)
	}
	if p.TargetAmount != nil {
		if err := ValidateAmount("target amount", *p.TargetAmount); err != nil {
			return err
		}
	}
	if p.Deadline != nil && p.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline cannot be empty", ErrValidation)
	}
	if p.Empty() {
		return fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	return nil
}

func (p CampaignPatch) Empty() bool {
	return p.TargetAmount == nil && p.Deadline == nil && p.Paused == nil && p.PetName == nil &&
		p.ImageURL == nil && p.Description == nil && p.LongDescription == nil
}

// EntryStatus is the ledger state of a single donation.
type EntryStatus string

const (
	EntryConfirmed EntryStatus = "confirmed"
	EntryRefunded  EntryStatus = "refunded"
)

// DonationEntry is one booked payment. PaymentReference is unique across the
// whole ledger and is the idempotency key for booking.
type DonationEntry struct {
	ID               string          `db:"id" json:"id"`
	CampaignID       string          `db:"campaign_id" json:"campaign_id"`
	DonorID          *string         `db:"donor_id" json:"donor_id,omitempty"`
	Amount           decimal.Decimal `db:"-" json:"amount"`
	PaymentReference string          `db:"payment_reference" json:"payment_reference"`
	Status           EntryStatus     `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	RefundedAt       *time.Time      `db:"refunded_at" json:"refunded_at,omitempty"`
}

// Donor returns the donor id or "" for anonymous donations.
func (e DonationEntry) Donor() string {
	if e.DonorID == nil {
		return ""
	}
	return *e.DonorID
}

// Fault kinds recorded when the ledger and an aggregate diverge.
const (
	FaultConfirmAggregate = "confirm_aggregate"
	FaultRefundLedger     = "refund_ledger"
	FaultRefundAggregate  = "refund_aggregate"
)

// ReconciliationFault is an operator work item: a ledger change whose
// aggregate update did not land.
type ReconciliationFault struct {
	ID         string          `db:"id" json:"id"`
	Kind       string          `db:"kind" json:"kind"`
	CampaignID string          `db:"campaign_id" json:"campaign_id"`
	EntryID    string          `db:"entry_id" json:"entry_id"`
	Delta      decimal.Decimal `db:"-" json:"delta"`
	Detail     string          `db:"detail" json:"detail"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// AggregateDrift is a campaign whose cached total disagrees with its ledger.
type AggregateDrift struct {
	CampaignID    string          `json:"campaign_id"`
	DonatedAmount decimal.Decimal `json:"donated_amount"`
	LedgerTotal   decimal.Decimal `json:"ledger_total"`
}

// Actor is the already-authenticated caller handed to us by the identity layer.
type Actor struct {
	ID    string
	Admin bool
}

// ValidateAmount accepts positive amounts with at most two fractional digits.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrValidation, field)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s has more than two decimal places", ErrValidation, field)
	}
	return nil
}
