package notification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/pkg/logger"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

type decodedEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

func TestRedisNotifier_PublishesToUserChannel(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	sub := client.Subscribe(ctx, ChannelPrefix+"p1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	accepted := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, NewRedisNotifier(client).Notify(ctx, "p1", domain.RideAcceptedEvent{
		PassengerID: "p1",
		PoolID:      "pool-1",
		DriverName:  "Ravi",
		DriverPhone: "+91-900",
		AcceptedAt:  accepted,
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env decodedEnvelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, domain.EventRideAccepted, env.Type)
	assert.True(t, accepted.Equal(env.SentAt))
	assert.JSONEq(t, `{"pool_id":"pool-1","driver":{"name":"Ravi","phone":"+91-900"}}`, string(env.Payload))
}

func TestRedisNotifier_NoSubscriberIsNotAnError(t *testing.T) {
	client := newTestClient(t)

	err := NewRedisNotifier(client).Notify(context.Background(), "nobody", domain.RideErrorEvent{
		PassengerID: "nobody",
		Message:     "boom",
		FailedAt:    time.Now(),
	})

	assert.NoError(t, err)
}

func TestPayloadOf(t *testing.T) {
	snapshot := domain.PoolSnapshot{ID: "pool-1"}

	matched, err := json.Marshal(payloadOf(domain.RideMatchedEvent{JobID: "j1", Pool: snapshot, IsNewPool: true}))
	require.NoError(t, err)
	assert.Contains(t, string(matched), `"job_id":"j1"`)
	assert.Contains(t, string(matched), `"is_new_pool":true`)

	cancelled, err := json.Marshal(payloadOf(domain.RideCancelledEvent{PoolID: "pool-1", PoolStatus: domain.StatusOpen}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"pool_id":"pool-1","pool_status":"open"}`, string(cancelled))

	failed, err := json.Marshal(payloadOf(domain.RideErrorEvent{JobID: "j2", Message: "no pool"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_id":"j2","message":"no pool"}`, string(failed))
}

type fakeSender struct {
	mu        sync.Mutex
	connected map[string]bool
	sent      map[string][]json.RawMessage
}

func (f *fakeSender) SendToUser(userID string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[userID] = append(f.sent[userID], message.(json.RawMessage))
	return nil
}

func (f *fakeSender) IsUserConnected(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[userID]
}

func (f *fakeSender) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[userID])
}

func TestRelay_ForwardsToConnectedUsersOnly(t *testing.T) {
	client := newTestClient(t)
	sender := &fakeSender{connected: map[string]bool{"p1": true}, sent: map[string][]json.RawMessage{}}
	relay := NewRelay(client, sender, logger.NewNop())
	notifier := NewRedisNotifier(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	event := domain.RideErrorEvent{PassengerID: "p1", Message: "no pool", FailedAt: time.Now()}
	assert.Eventually(t, func() bool {
		_ = notifier.Notify(context.Background(), "p1", event)
		_ = notifier.Notify(context.Background(), "p2", event)
		return sender.count("p1") > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, sender.count("p2"))
	var env decodedEnvelope
	require.NoError(t, json.Unmarshal(sender.sent["p1"][0], &env))
	assert.Equal(t, domain.EventRideError, env.Type)
}
