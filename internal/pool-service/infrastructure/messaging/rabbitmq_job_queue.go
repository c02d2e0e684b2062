package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ride-pool/internal/pool-service/service"
	"ride-pool/pkg/logger"
	"ride-pool/pkg/rabbitmq"
)

type publisher interface {
	Publish(ctx context.Context, exchange, routingkey, messageID string, body []byte) error
}

// RabbitMQJobQueue implements service.JobQueue on the pool topic exchange
type RabbitMQJobQueue struct {
	rabbit publisher
	logger logger.Logger
}

var _ service.JobQueue = (*RabbitMQJobQueue)(nil)

// NewRabbitMQJobQueue creates a new queue. rabbit is normally a *rabbitmq.Connection.
func NewRabbitMQJobQueue(rabbit publisher, logger logger.Logger) *RabbitMQJobQueue {
	return &RabbitMQJobQueue{
		rabbit: rabbit,
		logger: logger,
	}
}

// Enqueue publishes the job as a persistent message keyed by its job id
func (q *RabbitMQJobQueue) Enqueue(ctx context.Context, job service.MatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	routingKey := RoutingKey(job.Terminal)
	if err := q.rabbit.Publish(ctx, rabbitmq.PoolExchange, routingKey, job.JobID, body); err != nil {
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}

	q.logger.WithFields(logger.LogFields{
		"job_id":      job.JobID,
		"routing_key": routingKey,
	}).Info("job_enqueued", "Match job published to RabbitMQ")

	return nil
}

// RoutingKey is pool.match.<terminal>, with the terminal reduced to a
// single topic word.
func RoutingKey(terminal string) string {
	word := strings.ToLower(strings.NewReplacer(".", "_", "*", "_", "#", "_", " ", "_").Replace(terminal))
	return rabbitmq.MatchRoutingPrefix + word
}
