package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pawfund/internal/models"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrCampaignClosed),
		errors.Is(err, models.ErrCampaignHasDonations),
		errors.Is(err, models.ErrAlreadyRefunded):
		return http.StatusConflict
	case errors.Is(err, models.ErrPaymentNotConfirmed),
		errors.Is(err, models.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrRefundFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err.Error())
		c.JSON(status, gin.H{"error": "Server error."})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondEntry answers an operation that returns a ledger entry. When the
// entry was written but the campaign total was not, the caller still gets
// the entry, with a 202 and a warning.
func respondEntry(c *gin.Context, log *slog.Logger, entry models.DonationEntry, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, entry)
	case errors.Is(err, models.ErrLedgerInconsistency) && entry.ID != "":
		c.JSON(http.StatusAccepted, gin.H{
			"donation": entry,
			"warning":  "donation recorded; campaign total is being reconciled",
		})
	case errors.Is(err, models.ErrAlreadyRefunded) && entry.ID != "":
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "donation": entry})
	default:
		respondError(c, log, err)
	}
}
