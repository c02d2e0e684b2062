package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/internal/pool-service/service"
)

// ChannelPrefix prefixes the per-user Pub/Sub channel.
const ChannelPrefix = "notify:user:"

// Envelope is what a subscriber receives for every event.
type Envelope struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

type rideMatchedPayload struct {
	JobID     string              `json:"job_id,omitempty"`
	IsNewPool bool                `json:"is_new_pool"`
	Pool      domain.PoolSnapshot `json:"pool"`
}

type driverInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type rideAcceptedPayload struct {
	PoolID string     `json:"pool_id"`
	Driver driverInfo `json:"driver"`
}

type rideErrorPayload struct {
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message"`
}

type rideCancelledPayload struct {
	PoolID     string `json:"pool_id"`
	PoolStatus string `json:"pool_status"`
}

// RedisNotifier publishes events on Redis Pub/Sub. A message published while
// nobody is subscribed is dropped.
type RedisNotifier struct {
	client redis.UniversalClient
}

var _ service.Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID string, event domain.DomainEvent) error {
	data, err := json.Marshal(Envelope{
		Type:    event.EventType(),
		Payload: payloadOf(event),
		SentAt:  event.OccurredAt().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}
	if err := n.client.Publish(ctx, ChannelPrefix+userID, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}

func payloadOf(event domain.DomainEvent) any {
	switch e := event.(type) {
	case domain.RideMatchedEvent:
		return rideMatchedPayload{JobID: e.JobID, IsNewPool: e.IsNewPool, Pool: e.Pool}
	case domain.RideAcceptedEvent:
		return rideAcceptedPayload{PoolID: e.PoolID, Driver: driverInfo{Name: e.DriverName, Phone: e.DriverPhone}}
	case domain.RideErrorEvent:
		return rideErrorPayload{JobID: e.JobID, Message: e.Message}
	case domain.RideCancelledEvent:
		return rideCancelledPayload{PoolID: e.PoolID, PoolStatus: e.PoolStatus.String()}
	default:
		return event
	}
}
