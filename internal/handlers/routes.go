package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pawfund/internal/donation"
	"pawfund/internal/middleware"
	ws "pawfund/internal/websocket"
)

// Register mounts every route on r. Campaign reads, intents, confirmations,
// the gateway webhook and the live feed are public; anything that edits or
// lists on someone's behalf needs a bearer token. origins restricts which
// browser pages may open the live feed.
func Register(r *gin.Engine, svc *donation.Service, hub *ws.Hub, jwtSecret string, origins []string, logger *slog.Logger) {
	campaignHandler := NewCampaignHandler(svc, logger)
	donationHandler := NewDonationHandler(svc, logger)
	wsHandler := NewWebSocketHandler(svc, hub, origins, logger)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	{
		public := api.Group("/")
		public.Use(middleware.OptionalAuth(jwtSecret))
		{
			public.GET("/campaigns/:id", campaignHandler.GetCampaign)
			public.POST("/campaigns/:id/donation-intent", donationHandler.CreateDonationIntent)
			public.POST("/campaigns/:id/donation-confirm", donationHandler.ConfirmDonation)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			protected.POST("/campaigns", campaignHandler.CreateCampaign)
			protected.PATCH("/campaigns/:id", campaignHandler.UpdateCampaign)
			protected.DELETE("/campaigns/:id", campaignHandler.DeleteCampaign)
			protected.GET("/campaigns/:id/donations", campaignHandler.GetCampaignDonations)
			protected.GET("/donations/me", donationHandler.GetMyDonations)
			protected.POST("/donations/:entryId/refund", donationHandler.RefundDonation)
		}

		api.POST("/webhook/payment", donationHandler.HandlePaymentNotification)
		api.GET("/ws/campaigns/:id", wsHandler.ServeCampaignFeed)
	}
}
