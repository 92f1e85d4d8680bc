package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"pawfund/internal/donation"
	"pawfund/internal/middleware"
	"pawfund/internal/models"
)

type CampaignHandler struct {
	Service *donation.Service
	log     *slog.Logger
}

func NewCampaignHandler(svc *donation.Service, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, log: logger.With("module", "handlers")}
}

type CreateCampaignRequest struct {
	PetReference    string          `json:"pet_reference" binding:"required"`
	PetName         string          `json:"pet_name"`
	ImageURL        string          `json:"image_url"`
	Description     string          `json:"description"`
	LongDescription string          `json:"long_description"`
	TargetAmount    decimal.Decimal `json:"target_amount"`
	Deadline        time.Time       `json:"deadline" binding:"required"`
}

// campaignView is a campaign as clients see it, with its derived status.
type campaignView struct {
	models.Campaign
	Status models.CampaignStatus `json:"status"`
}

func (h *CampaignHandler) view(c models.Campaign) campaignView {
	return campaignView{Campaign: c, Status: h.Service.CampaignStatus(c)}
}

func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	campaign, err := h.Service.CreateCampaign(c.Request.Context(), middleware.ActorFrom(c), models.NewCampaign{
		PetReference:    req.PetReference,
		PetName:         req.PetName,
		ImageURL:        req.ImageURL,
		Description:     req.Description,
		LongDescription: req.LongDescription,
		TargetAmount:    req.TargetAmount,
		Deadline:        req.Deadline,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(campaign))
}

func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, err := h.Service.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, h.view(campaign))
}

// UpdateCampaign takes any subset of the editable fields, pause included.
func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	var patch models.CampaignPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	campaign, err := h.Service.UpdateCampaign(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, h.view(campaign))
}

func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	if err := h.Service.DeleteCampaign(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetCampaignDonations lists the ledger of one campaign, newest first.
func (h *CampaignHandler) GetCampaignDonations(c *gin.Context) {
	donations, err := h.Service.CampaignDonations(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if donations == nil {
		donations = []models.DonationEntry{}
	}
	c.JSON(http.StatusOK, donations)
}
