// Package donation keeps each campaign's raised total consistent with its
// ledger of payments. It books gateway-verified payments exactly once,
// reverses them exactly once, and decides when a campaign may take new
// donations.
package donation

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"pawfund/internal/gateway"
	"pawfund/internal/models"
)

type CampaignStore interface {
	CreateCampaign(ctx context.Context, n models.NewCampaign) (models.Campaign, error)
	GetCampaign(ctx context.Context, id string) (models.Campaign, error)
	UpdateMetadata(ctx context.Context, id string, patch models.CampaignPatch) (models.Campaign, error)
	ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (models.Campaign, error)
	DeleteCampaign(ctx context.Context, id string) error
}

type Ledger interface {
	RecordConfirmed(ctx context.Context, campaignID, donorID string, amount decimal.Decimal, paymentReference string) (models.DonationEntry, bool, error)
	MarkRefunded(ctx context.Context, entryID string) (models.DonationEntry, error)
	GetEntry(ctx context.Context, entryID string) (models.DonationEntry, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]models.DonationEntry, error)
	ListByDonor(ctx context.Context, donorID string) ([]models.DonationEntry, error)
}

type FaultRecorder interface {
	RecordFault(ctx context.Context, fault models.ReconciliationFault) (models.ReconciliationFault, error)
}

// Notifier receives progress events. Implementations must not block.
type Notifier interface {
	Publish(ctx context.Context, event models.DonationEvent)
}

type Dependencies struct {
	Campaigns CampaignStore
	Ledger    Ledger
	Faults    FaultRecorder
	Gateway   gateway.Gateway
	Notifier  Notifier
	Now       func() time.Time
	Logger    *slog.Logger
}

type Service struct {
	campaigns CampaignStore
	ledger    Ledger
	faults    FaultRecorder
	gateway   gateway.Gateway
	notifier  Notifier
	nowFn     func() time.Time
	log       *slog.Logger
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		campaigns: deps.Campaigns,
		ledger:    deps.Ledger,
		faults:    deps.Faults,
		gateway:   deps.Gateway,
		notifier:  deps.Notifier,
		nowFn:     deps.Now,
		log:       deps.Logger,
	}
	if s.nowFn == nil {
		s.nowFn = func() time.Time { return time.Now().UTC() }
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("module", "donation")
	return s
}

func (s *Service) publish(ctx context.Context, kind string, entry models.DonationEntry, campaign models.Campaign) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, models.DonationEvent{
		Type:          kind,
		CampaignID:    entry.CampaignID,
		EntryID:       entry.ID,
		Amount:        entry.Amount,
		DonatedAmount: campaign.DonatedAmount,
		TargetAmount:  campaign.TargetAmount,
		OccurredAt:    s.nowFn(),
	})
}

// reportFault logs a ledger/aggregate divergence at error level and files it
// for an operator. Failing to file it is logged too, never swallowed.
func (s *Service) reportFault(ctx context.Context, kind string, entry models.DonationEntry, delta decimal.Decimal, cause error) {
	s.log.ErrorContext(ctx, "ledger inconsistency",
		"operation", kind,
		"campaign_id", entry.CampaignID,
		"entry_id", entry.ID,
		"payment_reference", entry.PaymentReference,
		"delta", delta.String(),
		"error", cause.Error(),
	)
	if s.faults == nil {
		return
	}
	_, err := s.faults.RecordFault(ctx, models.ReconciliationFault{
		Kind:       kind,
		CampaignID: entry.CampaignID,
		EntryID:    entry.ID,
		Delta:      delta,
		Detail:     cause.Error(),
		CreatedAt:  s.nowFn(),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to record reconciliation fault",
			"operation", kind,
			"entry_id", entry.ID,
			"error", err.Error(),
		)
	}
}
