package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"pawfund/internal/models"
)

// Client is one live progress subscriber of a single campaign.
type Client struct {
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte
	CampaignID string
}

// Hub fans donation events out to the subscribers of each campaign. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.DonationEvent
	done       chan struct{}
	log        *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.DonationEvent, 256),
		done:       make(chan struct{}),
		log:        logger.With("module", "websocket"),
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full the event is dropped and logged.
func (h *Hub) Publish(ctx context.Context, event models.DonationEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.log.WarnContext(ctx, "dropping donation event, hub queue full",
			"campaign_id", event.CampaignID, "entry_id", event.EntryID)
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, set := range h.clients {
			for client := range set {
				close(client.Send)
			}
		}
		h.clients = map[string]map[*Client]struct{}{}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			set, ok := h.clients[client.CampaignID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.CampaignID] = set
			}
			set[client] = struct{}{}
			h.log.Debug("client registered", "campaign_id", client.CampaignID, "subscribers", len(set))

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			set := h.clients[event.CampaignID]
			if len(set) == 0 {
				continue
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.log.Error("failed to marshal donation event", "error", err.Error())
				continue
			}
			for client := range set {
				select {
				case client.Send <- payload:
				default:
					// Too slow to keep up; cut it loose.
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.CampaignID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.CampaignID)
	}
	h.log.Debug("client unregistered", "campaign_id", client.CampaignID)
}
