package donation

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pawfund/internal/gateway"
	"pawfund/internal/models"
)

// ConfirmInput is a claim that a payment for a campaign went through. It is
// only believed once the gateway agrees. Caller is whoever reports it; the
// donor is always the one the gateway recorded on the intent.
type ConfirmInput struct {
	CampaignID       string
	Caller           models.Actor
	Amount           decimal.Decimal
	PaymentReference string
}

func (in ConfirmInput) validate() error {
	if strings.TrimSpace(in.CampaignID) == "" {
		return fmt.Errorf("%w: campaign is required", models.ErrValidation)
	}
	if strings.TrimSpace(in.PaymentReference) == "" {
		return fmt.Errorf("%w: payment reference is required", models.ErrValidation)
	}
	return models.ValidateAmount("amount", in.Amount)
}

// ConfirmDonation books a client-reported payment. The gateway is asked
// first; nothing is written unless it reports the intent as paid for this
// campaign and amount. Repeating a confirmation returns the entry booked the
// first time and leaves the campaign total alone. A signed-in caller other
// than the paying donor is refused unless they are an admin.
//
// Pause and expiry are not checked: the intent was created
// while the campaign was open and the money has already moved.
func (s *Service) ConfirmDonation(ctx context.Context, in ConfirmInput) (models.DonationEntry, error) {
	if err := in.validate(); err != nil {
		return models.DonationEntry{}, err
	}

	status, err := s.verify(ctx, in.PaymentReference)
	if err != nil {
		return models.DonationEntry{}, err
	}
	if !status.Amount.IsZero() && !status.Amount.Equal(in.Amount) {
		return models.DonationEntry{}, fmt.Errorf("%w: gateway amount %s does not match %s",
			models.ErrPaymentNotConfirmed, status.Amount.String(), in.Amount.String())
	}
	if status.Metadata.CampaignID != "" && status.Metadata.CampaignID != in.CampaignID {
		return models.DonationEntry{}, fmt.Errorf("%w: payment %s belongs to another campaign",
			models.ErrPaymentNotConfirmed, in.PaymentReference)
	}
	donor := status.Metadata.DonorID
	if donor != "" && in.Caller.ID != "" && in.Caller.ID != donor && !in.Caller.Admin {
		s.log.WarnContext(ctx, "confirmation by someone other than the donor",
			"operation", "confirm_donation", "payment_reference", in.PaymentReference, "caller", in.Caller.ID)
		return models.DonationEntry{}, fmt.Errorf("%w: payment %s was made by another donor",
			models.ErrPaymentNotConfirmed, in.PaymentReference)
	}

	return s.book(ctx, in, donor)
}

// ConfirmFromGateway books a payment announced by a gateway callback. The
// callback body is ignored beyond the intent id: campaign, donor and amount
// come from the gateway's own record of the intent.
func (s *Service) ConfirmFromGateway(ctx context.Context, intentID string) (models.DonationEntry, error) {
	if strings.TrimSpace(intentID) == "" {
		return models.DonationEntry{}, fmt.Errorf("%w: intent id is required", models.ErrValidation)
	}

	status, err := s.verify(ctx, intentID)
	if err != nil {
		return models.DonationEntry{}, err
	}
	if status.Metadata.CampaignID == "" {
		return models.DonationEntry{}, fmt.Errorf("%w: intent %s carries no campaign", models.ErrPaymentNotConfirmed, intentID)
	}

	in := ConfirmInput{
		CampaignID:       status.Metadata.CampaignID,
		Amount:           status.Amount,
		PaymentReference: intentID,
	}
	if err := in.validate(); err != nil {
		return models.DonationEntry{}, fmt.Errorf("%w: %v", models.ErrPaymentNotConfirmed, err)
	}
	return s.book(ctx, in, status.Metadata.DonorID)
}

// verify maps the gateway verdict onto the error taxonomy. A gateway error
// or timeout counts as not confirmed.
func (s *Service) verify(ctx context.Context, intentID string) (gateway.IntentStatus, error) {
	status, err := s.gateway.VerifyIntent(ctx, intentID)
	if err != nil {
		s.log.WarnContext(ctx, "payment verification failed",
			"operation", "verify_intent", "payment_reference", intentID, "error", err.Error())
		return gateway.IntentStatus{}, fmt.Errorf("%w: %v", models.ErrPaymentNotConfirmed, err)
	}

	switch status.State {
	case gateway.PaymentSucceeded:
		return status, nil
	case gateway.PaymentFailed:
		return gateway.IntentStatus{}, fmt.Errorf("%w: payment %s", models.ErrPaymentDeclined, intentID)
	default:
		return gateway.IntentStatus{}, fmt.Errorf("%w: payment %s is %s", models.ErrPaymentNotConfirmed, intentID, status.State)
	}
}

// book writes the ledger entry and, only if it is new, bumps the campaign
// total. Once the payment is verified the request context may no longer
// cancel the work, so a client hanging up cannot split the two writes.
func (s *Service) book(ctx context.Context, in ConfirmInput, donorID string) (models.DonationEntry, error) {
	ctx = context.WithoutCancel(ctx)

	entry, created, err := s.ledger.RecordConfirmed(ctx, in.CampaignID, donorID, in.Amount, in.PaymentReference)
	if err != nil {
		return models.DonationEntry{}, err
	}
	if !created {
		if entry.CampaignID != in.CampaignID || !entry.Amount.Equal(in.Amount) {
			s.log.WarnContext(ctx, "repeated confirmation does not match booked entry",
				"operation", "confirm_donation",
				"entry_id", entry.ID,
				"payment_reference", in.PaymentReference,
				"booked_campaign_id", entry.CampaignID,
				"claimed_campaign_id", in.CampaignID,
			)
		}
		return entry, nil
	}

	campaign, err := s.campaigns.ApplyDelta(ctx, entry.CampaignID, entry.Amount)
	if err != nil {
		s.reportFault(ctx, models.FaultConfirmAggregate, entry, entry.Amount, err)
		return entry, fmt.Errorf("%w: donation %s booked but campaign %s total not updated: %v",
			models.ErrLedgerInconsistency, entry.ID, entry.CampaignID, err)
	}

	s.log.InfoContext(ctx, "donation booked",
		"operation", "confirm_donation",
		"campaign_id", entry.CampaignID,
		"entry_id", entry.ID,
		"amount", entry.Amount.String(),
		"donated_amount", campaign.DonatedAmount.String(),
	)
	s.publish(ctx, models.EventDonationConfirmed, entry, campaign)
	return entry, nil
}
