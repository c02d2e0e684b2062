package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"ride-pool/pkg/logger"
)

// UserSender delivers a message to a user connected to this instance
type UserSender interface {
	SendToUser(userID string, message interface{}) error
	IsUserConnected(userID string) bool
}

// Relay forwards per-user Pub/Sub messages to local WebSocket connections.
// Every instance runs one, so a user is reached wherever they are connected.
type Relay struct {
	client redis.UniversalClient
	sender UserSender
	log    logger.Logger
}

func NewRelay(client redis.UniversalClient, sender UserSender, log logger.Logger) *Relay {
	return &Relay{client: client, sender: sender, log: log}
}

// Run blocks until ctx is cancelled or the subscription breaks.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	r.log.Info("notification_relay_started", "Listening for user notifications")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(msg)
		}
	}
}

func (r *Relay) forward(msg *redis.Message) {
	userID := strings.TrimPrefix(msg.Channel, ChannelPrefix)
	if !r.sender.IsUserConnected(userID) {
		return
	}
	if !json.Valid([]byte(msg.Payload)) {
		r.log.WithFields(logger.LogFields{"channel": msg.Channel}).Warn("notification_invalid_payload", "Dropping malformed notification")
		return
	}
	if err := r.sender.SendToUser(userID, json.RawMessage(msg.Payload)); err != nil {
		r.log.WithFields(logger.LogFields{"user_id": userID}).Error("notification_forward_failed", err)
	}
}
