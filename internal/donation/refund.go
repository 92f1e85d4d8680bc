package donation

import (
	"context"
	"errors"
	"fmt"

	"pawfund/internal/models"
)

// RefundDonation reverses one booked donation at the gateway, then in the
// ledger, then in the campaign total. A second refund of the same entry
// returns the entry with ErrAlreadyRefunded and changes nothing.
func (s *Service) RefundDonation(ctx context.Context, actor models.Actor, entryID string) (models.DonationEntry, error) {
	entry, err := s.ledger.GetEntry(ctx, entryID)
	if err != nil {
		return models.DonationEntry{}, err
	}
	if !s.mayRefund(ctx, actor, entry) {
		return models.DonationEntry{}, fmt.Errorf("%w: actor may not refund donation %s", models.ErrForbidden, entryID)
	}
	if entry.Status == models.EntryRefunded {
		return entry, fmt.Errorf("%w: donation %s", models.ErrAlreadyRefunded, entryID)
	}

	if _, err := s.gateway.Refund(ctx, entry.PaymentReference, entry.Amount); err != nil {
		s.log.WarnContext(ctx, "gateway refund failed",
			"operation", "refund_donation", "entry_id", entry.ID, "payment_reference", entry.PaymentReference, "error", err.Error())
		return models.DonationEntry{}, fmt.Errorf("%w: %v", models.ErrRefundFailed, err)
	}

	// Money has gone back to the donor; the local writes must finish.
	ctx = context.WithoutCancel(ctx)

	refunded, err := s.ledger.MarkRefunded(ctx, entry.ID)
	if errors.Is(err, models.ErrAlreadyRefunded) {
		// A concurrent refund got here first and owns the aggregate update.
		return refunded, err
	}
	if err != nil {
		s.reportFault(ctx, models.FaultRefundLedger, entry, entry.Amount.Neg(), err)
		return entry, fmt.Errorf("%w: donation %s refunded at the gateway but not in the ledger: %v",
			models.ErrLedgerInconsistency, entry.ID, err)
	}

	campaign, err := s.campaigns.ApplyDelta(ctx, refunded.CampaignID, refunded.Amount.Neg())
	if err != nil {
		s.reportFault(ctx, models.FaultRefundAggregate, refunded, refunded.Amount.Neg(), err)
		return refunded, fmt.Errorf("%w: donation %s refunded but campaign %s total not updated: %v",
			models.ErrLedgerInconsistency, refunded.ID, refunded.CampaignID, err)
	}

	s.log.InfoContext(ctx, "donation refunded",
		"operation", "refund_donation",
		"campaign_id", refunded.CampaignID,
		"entry_id", refunded.ID,
		"amount", refunded.Amount.String(),
		"donated_amount", campaign.DonatedAmount.String(),
	)
	s.publish(ctx, models.EventDonationRefunded, refunded, campaign)
	return refunded, nil
}

// mayRefund allows the donor, the campaign owner and admins.
func (s *Service) mayRefund(ctx context.Context, actor models.Actor, entry models.DonationEntry) bool {
	if actor.Admin {
		return true
	}
	if actor.ID == "" {
		return false
	}
	if actor.ID == entry.Donor() {
		return true
	}
	campaign, err := s.campaigns.GetCampaign(ctx, entry.CampaignID)
	return err == nil && campaign.OwnedBy(actor)
}
