package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"

	"pawfund/internal/donation"
	"pawfund/internal/middleware"
	"pawfund/internal/models"
)

type DonationHandler struct {
	Service *donation.Service
	log     *slog.Logger
}

func NewDonationHandler(svc *donation.Service, logger *slog.Logger) *DonationHandler {
	return &DonationHandler{Service: svc, log: logger.With("module", "handlers")}
}

type DonationIntentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ConfirmDonationRequest struct {
	PaymentReference string          `json:"payment_reference" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
}

// CreateDonationIntent opens a gateway payment for the campaign. Donors may
// be anonymous.
func (h *DonationHandler) CreateDonationIntent(c *gin.Context) {
	var req DonationIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	actor := middleware.ActorFrom(c)
	intent, err := h.Service.RequestDonationIntent(c.Request.Context(), c.Param("id"), actor.ID, req.Amount)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

// ConfirmDonation books a payment the client reports as finished. The donor
// is taken from the gateway, not from the request.
func (h *DonationHandler) ConfirmDonation(c *gin.Context) {
	var req ConfirmDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	entry, err := h.Service.ConfirmDonation(c.Request.Context(), donation.ConfirmInput{
		CampaignID:       c.Param("id"),
		Caller:           middleware.ActorFrom(c),
		Amount:           req.Amount,
		PaymentReference: req.PaymentReference,
	})
	respondEntry(c, h.log, entry, err)
}

func (h *DonationHandler) RefundDonation(c *gin.Context) {
	entry, err := h.Service.RefundDonation(c.Request.Context(), middleware.ActorFrom(c), c.Param("entryId"))
	respondEntry(c, h.log, entry, err)
}

func (h *DonationHandler) GetMyDonations(c *gin.Context) {
	donations, err := h.Service.DonorDonations(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if donations == nil {
		donations = []models.DonationEntry{}
	}
	c.JSON(http.StatusOK, donations)
}

// HandlePaymentNotification is the gateway's callback. Only the order id is
// taken from the body; everything else is re-read from the gateway. Anything
// other than a 2xx makes the gateway retry, so payments that are simply not
// settled yet are acknowledged.
func (h *DonationHandler) HandlePaymentNotification(c *gin.Context) {
	var notification coreapi.TransactionStatusResponse
	if err := c.ShouldBindJSON(&notification); err != nil {
		h.log.Warn("failed to bind payment notification", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification format"})
		return
	}

	entry, err := h.Service.ConfirmFromGateway(c.Request.Context(), notification.OrderID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "donation_id": entry.ID})
	case errors.Is(err, models.ErrPaymentNotConfirmed), errors.Is(err, models.ErrPaymentDeclined):
		h.log.Info("payment notification for unsettled transaction",
			"order_id", notification.OrderID, "transaction_status", notification.TransactionStatus, "error", err.Error())
		c.JSON(http.StatusOK, gin.H{"status": "ok (not settled)"})
	case errors.Is(err, models.ErrLedgerInconsistency) && entry.ID != "":
		// Booked; a retry would not fix the total, the fault log will.
		c.JSON(http.StatusOK, gin.H{"status": "ok", "donation_id": entry.ID})
	default:
		respondError(c, h.log, err)
	}
}
