package donation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pawfund/internal/gateway"
	"pawfund/internal/models"
)

func (s *Service) CreateCampaign(ctx context.Context, actor models.Actor, n models.NewCampaign) (models.Campaign, error) {
	n.OwnerID = actor.ID
	return s.campaigns.CreateCampaign(ctx, n)
}

func (s *Service) GetCampaign(ctx context.Context, id string) (models.Campaign, error) {
	return s.campaigns.GetCampaign(ctx, id)
}

// CampaignStatus returns the campaign's derived state at the service clock.
func (s *Service) CampaignStatus(c models.Campaign) models.CampaignStatus {
	return c.StatusAt(s.nowFn())
}

// UpdateCampaign applies an owner/admin edit. Pause and resume are ordinary
// edits here and are last-writer-wins.
func (s *Service) UpdateCampaign(ctx context.Context, actor models.Actor, id string, patch models.CampaignPatch) (models.Campaign, error) {
	if err := patch.Validate(); err != nil {
		return models.Campaign{}, err
	}

	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return models.Campaign{}, err
	}
	if !campaign.OwnedBy(actor) {
		return models.Campaign{}, fmt.Errorf("%w: only the owner or an admin may edit campaign %s", models.ErrForbidden, id)
	}
	if patch.TargetAmount != nil && campaign.StatusAt(s.nowFn()) == models.CampaignExpired {
		return models.Campaign{}, fmt.Errorf("%w: campaign %s has expired", models.ErrCampaignClosed, id)
	}

	updated, err := s.campaigns.UpdateMetadata(ctx, id, patch)
	if err != nil {
		return models.Campaign{}, err
	}
	if patch.Paused != nil && *patch.Paused != campaign.Paused {
		s.log.InfoContext(ctx, "campaign pause toggled",
			"operation", "update_campaign", "campaign_id", id, "paused", *patch.Paused, "actor", actor.ID)
	}
	return updated, nil
}

// SetPaused moves a campaign between Active and Paused.
func (s *Service) SetPaused(ctx context.Context, actor models.Actor, id string, paused bool) (models.Campaign, error) {
	return s.UpdateCampaign(ctx, actor, id, models.CampaignPatch{Paused: &paused})
}

// DeleteCampaign tombstones a campaign. It is refused while anything raised
// is still booked against it, so no confirmed entry is ever orphaned.
func (s *Service) DeleteCampaign(ctx context.Context, actor models.Actor, id string) error {
	campaign, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if !campaign.OwnedBy(actor) {
		return fmt.Errorf("%w: only the owner or an admin may delete campaign %s", models.ErrForbidden, id)
	}
	if err := s.campaigns.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "campaign deleted", "operation", "delete_campaign", "campaign_id", id, "actor", actor.ID)
	return nil
}

// RequestDonationIntent opens a payment at the gateway for an active
// campaign. This is the only place pause and expiry are enforced.
func (s *Service) RequestDonationIntent(ctx context.Context, campaignID, donorID string, amount decimal.Decimal) (gateway.Intent, error) {
	if err := models.ValidateAmount("amount", amount); err != nil {
		return gateway.Intent{}, err
	}

	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return gateway.Intent{}, err
	}
	if status := campaign.StatusAt(s.nowFn()); status != models.CampaignActive {
		return gateway.Intent{}, fmt.Errorf("%w: campaign %s is %s", models.ErrCampaignClosed, campaignID, status)
	}

	intent, err := s.gateway.CreateIntent(ctx, amount, gateway.IntentMetadata{CampaignID: campaignID, DonorID: donorID})
	if errors.Is(err, gateway.ErrUnsupportedAmount) {
		return gateway.Intent{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if err != nil {
		s.log.WarnContext(ctx, "gateway could not create intent",
			"operation", "request_donation_intent", "campaign_id", campaignID, "error", err.Error())
		return gateway.Intent{}, err
	}
	return intent, nil
}

// CampaignDonations lists a campaign's ledger for its owner or an admin.
func (s *Service) CampaignDonations(ctx context.Context, actor models.Actor, campaignID string) ([]models.DonationEntry, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.OwnedBy(actor) {
		return nil, fmt.Errorf("%w: only the owner or an admin may list donors of campaign %s", models.ErrForbidden, campaignID)
	}
	return s.ledger.ListByCampaign(ctx, campaignID)
}

func (s *Service) DonorDonations(ctx context.Context, actor models.Actor) ([]models.DonationEntry, error) {
	return s.ledger.ListByDonor(ctx, actor.ID)
}
