// Package gateway is the boundary to the card-payment provider. The core
// only relies on the three operations of Gateway.
package gateway

//go:generate mockgen -source=gateway.go -destination=mocks/gateway.go -package=mocks

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrDeclined is returned by Refund when the provider refuses it outright.
	ErrDeclined = errors.New("gateway declined")
	// ErrUnsupportedAmount means the provider cannot charge this amount in its
	// currency unit. Nothing was sent.
	ErrUnsupportedAmount = errors.New("amount not supported by gateway")
)

// IntentMetadata travels with the intent and comes back on verification, so
// a webhook can be booked without trusting its body.
type IntentMetadata struct {
	CampaignID string
	DonorID    string
}

// Intent is what the donor's client needs to complete the payment.
type Intent struct {
	ID           string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

// PaymentState is the provider's verdict on an intent.
type PaymentState string

const (
	PaymentSucceeded PaymentState = "succeeded"
	PaymentPending   PaymentState = "pending"
	PaymentFailed    PaymentState = "failed"
)

// IntentStatus is the result of asking the provider about an intent.
type IntentStatus struct {
	IntentID      string
	State         PaymentState
	Amount        decimal.Decimal
	TransactionID string
	Metadata      IntentMetadata
}

func (s IntentStatus) Succeeded() bool {
	return s.State == PaymentSucceeded
}

type RefundResult struct {
	PaymentReference string
	Status           string
}

type Gateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, meta IntentMetadata) (Intent, error)
	// VerifyIntent asks the provider, never the client, whether the intent
	// was paid. Callers must treat any error as "not confirmed".
	VerifyIntent(ctx context.Context, intentID string) (IntentStatus, error)
	Refund(ctx context.Context, paymentReference string, amount decimal.Decimal) (RefundResult, error)
}
