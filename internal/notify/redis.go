// Package notify carries donation events between API instances over Redis
// pub/sub so every instance's websocket hub sees every event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"pawfund/internal/models"
)

// Sink is where relayed events end up, normally the websocket hub.
type Sink interface {
	Publish(ctx context.Context, event models.DonationEvent)
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisPublisher sends events to a channel from a background loop so that
// Publish never waits on the network.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	queue   chan models.DonationEvent
	log     *slog.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		queue:   make(chan models.DonationEvent, 256),
		log:     logger.With("module", "notify"),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.DonationEvent) {
	select {
	case p.queue <- event:
	default:
		p.log.WarnContext(ctx, "dropping donation event, publish queue full",
			"campaign_id", event.CampaignID, "entry_id", event.EntryID)
	}
}

// Run drains the queue until ctx is done.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.queue:
			payload, err := encode(event)
			if err != nil {
				p.log.Error("failed to encode donation event", "error", err.Error())
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = p.client.Publish(sendCtx, p.channel, payload).Err()
			cancel()
			if err != nil {
				p.log.Warn("failed to publish donation event",
					"channel", p.channel, "campaign_id", event.CampaignID, "error", err.Error())
			}
		}
	}
}

// relayBackOff paces resubscription while Redis is unreachable.
var relayBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	return b
}

// Relay subscribes to channel and hands every event to sink until ctx is
// done. Subscribing is retried until it succeeds, so a Redis outage at
// startup only delays cross-instance delivery. Malformed messages are logged
// and skipped.
func Relay(ctx context.Context, client *redis.Client, channel string, sink Sink, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sub, err := subscribe(ctx, client, channel, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer sub.Close()

	logger.Info("relaying donation events", "module", "notify", "channel", channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, err := decode(msg.Payload)
			if err != nil {
				logger.Warn("skipping malformed donation event", "module", "notify", "error", err.Error())
				continue
			}
			sink.Publish(ctx, event)
		}
	}
}

func subscribe(ctx context.Context, client *redis.Client, channel string, logger *slog.Logger) (*redis.PubSub, error) {
	attempt := func() (*redis.PubSub, error) {
		sub := client.Subscribe(ctx, channel)
		if _, err := sub.Receive(ctx); err != nil {
			sub.Close()
			return nil, err
		}
		return sub, nil
	}
	sub, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(relayBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("redis subscribe failed, retrying",
				"module", "notify", "channel", channel, "retry_in", next.String(), "error", err.Error())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return sub, nil
}

func encode(event models.DonationEvent) (string, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(payload string) (models.DonationEvent, error) {
	var event models.DonationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return models.DonationEvent{}, fmt.Errorf("decode donation event: %w", err)
	}
	if event.CampaignID == "" {
		return models.DonationEvent{}, fmt.Errorf("decode donation event: missing campaign_id")
	}
	return event, nil
}
