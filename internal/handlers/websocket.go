package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pawfund/internal/donation"
	ws "pawfund/internal/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type WebSocketHandler struct {
	Service  *donation.Service
	Hub      *ws.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewWebSocketHandler accepts browser connections only from origins, the
// same list CORS uses. An empty list or "*" allows any origin.
func NewWebSocketHandler(svc *donation.Service, hub *ws.Hub, origins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		Service:  svc,
		Hub:      hub,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(origins)},
		log:      logger.With("module", "handlers"),
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := map[string]bool{}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || allowed[strings.ToLower(origin)]
	}
}

// ServeCampaignFeed streams donation events for one campaign.
func (h *WebSocketHandler) ServeCampaignFeed(c *gin.Context) {
	campaign, err := h.Service.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade to websocket", "error", err.Error())
		return
	}

	client := &ws.Client{
		Hub:        h.Hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		CampaignID: campaign.ID,
	}
	h.Hub.Register(client)

	go h.writePump(client)
	go h.readPump(client)
}

func (h *WebSocketHandler) writePump(client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to notice the peer going away and to answer pings.
func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		client.Hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(512)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read error", "campaign_id", client.CampaignID, "error", err.Error())
			}
			return
		}
	}
}
