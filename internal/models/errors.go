package models

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrCampaignClosed       = errors.New("campaign closed")
	ErrCampaignHasDonations = errors.New("campaign has donations")
	ErrPaymentNotConfirmed  = errors.New("payment not confirmed")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrAlreadyRefunded      = errors.New("already refunded")
	ErrRefundFailed         = errors.New("refund failed")

	// ErrLedgerInconsistency means the ledger and a campaign aggregate have
	// diverged. It must reach an operator.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
)
