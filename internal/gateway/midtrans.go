package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

const intentPrefix = "DONATION-"

// Midtrans implements Gateway with Snap for intents and the Core API for
// status checks and refunds. gross_amount is whole rupiah, so amounts with a
// fractional part are refused with ErrUnsupportedAmount.
type Midtrans struct {
	SnapClient snap.Client
	CoreClient coreapi.Client
	Timeout    time.Duration
	MaxTries   uint
	log        *slog.Logger
}

func NewMidtrans(serverKey string, env midtrans.EnvironmentType, timeout time.Duration) *Midtrans {
	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	return &Midtrans{
		SnapClient: s,
		CoreClient: c,
		Timeout:    timeout,
		MaxTries:   3,
		log:        slog.Default().With("module", "gateway", "provider", "midtrans"),
	}
}

// Environment maps a config value onto the Midtrans environment.
func Environment(name string) midtrans.EnvironmentType {
	if strings.EqualFold(name, "production") {
		return midtrans.Production
	}
	return midtrans.Sandbox
}

func (m *Midtrans) CreateIntent(ctx context.Context, amount decimal.Decimal, meta IntentMetadata) (Intent, error) {
	gross, err := grossAmount(amount)
	if err != nil {
		return Intent{}, err
	}

	orderID := intentPrefix + uuid.NewString()
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		CustomField1: meta.CampaignID,
		CustomField2: meta.DonorID,
	}

	// Creating a transaction is not retried: a lost response would leave a
	// second orphaned intent behind.
	resp, err := bounded(ctx, m.Timeout, 1, func() (*snap.Response, error) {
		r, mErr := m.SnapClient.CreateTransaction(req)
		if r != nil && r.Token != "" {
			if mErr != nil {
				m.log.WarnContext(ctx, "snap returned a token and an error", "order_id", orderID, "error", mErr.Message)
			}
			return r, nil
		}
		return r, asError(mErr)
	})
	if err != nil {
		return Intent{}, fmt.Errorf("create intent: %w", err)
	}
	if resp == nil || resp.Token == "" {
		return Intent{}, errors.New("create intent: empty response from snap")
	}

	return Intent{ID: orderID, ClientSecret: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (m *Midtrans) VerifyIntent(ctx context.Context, intentID string) (IntentStatus, error) {
	resp, err := bounded(ctx, m.Timeout, m.MaxTries, func() (*coreapi.TransactionStatusResponse, error) {
		r, mErr := m.CoreClient.CheckTransaction(intentID)
		return r, asError(mErr)
	})
	if err != nil {
		return IntentStatus{}, fmt.Errorf("check transaction %s: %w", intentID, err)
	}
	if resp == nil {
		return IntentStatus{}, fmt.Errorf("check transaction %s: empty response", intentID)
	}

	amount, err := parseGrossAmount(resp.GrossAmount)
	if err != nil {
		return IntentStatus{}, fmt.Errorf("check transaction %s: %w", intentID, err)
	}

	return IntentStatus{
		IntentID:      intentID,
		State:         stateOf(resp.TransactionStatus, resp.FraudStatus),
		Amount:        amount,
		TransactionID: resp.TransactionID,
		Metadata:      IntentMetadata{CampaignID: resp.CustomField1, DonorID: resp.CustomField2},
	}, nil
}

func (m *Midtrans) Refund(ctx context.Context, paymentReference string, amount decimal.Decimal) (RefundResult, error) {
	gross, err := grossAmount(amount)
	if err != nil {
		return RefundResult{}, err
	}

	// The refund key makes repeated refunds of one payment a no-op at Midtrans.
	req := &coreapi.RefundReq{
		RefundKey: "refund-" + paymentReference,
		Amount:    gross,
		Reason:    "donation refund",
	}

	resp, err := bounded(ctx, m.Timeout, m.MaxTries, func() (*coreapi.RefundResponse, error) {
		r, mErr := m.CoreClient.RefundTransaction(paymentReference, req)
		return r, asError(mErr)
	})
	if err != nil {
		return RefundResult{}, fmt.Errorf("refund %s: %w", paymentReference, err)
	}
	if resp == nil {
		return RefundResult{}, fmt.Errorf("refund %s: empty response", paymentReference)
	}
	if !strings.HasPrefix(resp.StatusCode, "2") {
		return RefundResult{}, fmt.Errorf("%w: refund %s: status %s", ErrDeclined, paymentReference, resp.StatusCode)
	}

	return RefundResult{PaymentReference: paymentReference, Status: resp.TransactionStatus}, nil
}

// bounded runs op with retries on transient errors, giving up when timeout
// expires. The Midtrans client takes no context, so a timed-out attempt is
// abandoned rather than cancelled.
func bounded[T any](ctx context.Context, timeout time.Duration, tries uint, op func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attempt := func() (T, error) {
		v, err := withContext(ctx, op)
		if err != nil && !transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tries),
	)
}

func withContext[T any](ctx context.Context, op func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

func stateOf(transactionStatus, fraudStatus string) PaymentState {
	switch transactionStatus {
	case "settlement":
		return PaymentSucceeded
	case "capture":
		switch fraudStatus {
		case "", "accept":
			return PaymentSucceeded
		case "challenge":
			return PaymentPending
		default:
			return PaymentFailed
		}
	case "deny", "cancel", "expire", "failure", "refund", "partial_refund", "chargeback", "partial_chargeback":
		return PaymentFailed
	default:
		return PaymentPending
	}
}

func grossAmount(amount decimal.Decimal) (int64, error) {
	if !amount.Equal(amount.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s is not a whole rupiah amount", ErrUnsupportedAmount, amount.String())
	}
	return amount.IntPart(), nil
}

// parseGrossAmount reads gross_amount as Midtrans reports it, e.g. "20000.00".
func parseGrossAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse gross amount %q: %w", raw, err)
	}
	return d, nil
}

func asError(e *midtrans.Error) error {
	if e == nil {
		return nil
	}
	return e
}

// transient reports whether a retry might succeed: transport failures,
// throttling and provider-side 5xx.
func transient(err error) bool {
	var mErr *midtrans.Error
	if errors.As(err, &mErr) {
		return mErr.StatusCode == 0 || mErr.StatusCode == http.StatusTooManyRequests || mErr.StatusCode >= 500
	}
	return false
}
