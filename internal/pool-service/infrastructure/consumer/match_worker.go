package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/internal/pool-service/service"
	"ride-pool/pkg/logger"
	"ride-pool/pkg/rabbitmq"
)

// Final job statuses reported to JobMetrics.
const (
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobRequeued   = "requeued"
	JobDeadLetter = "dead_lettered"
)

const failedMatchMessage = "could not match your ride request, please try again"

type messageConsumer interface {
	Consume(queueName string, prefetch int, handler func(amqp.Delivery)) error
}

type matcher interface {
	Execute(ctx context.Context, cmd service.MatchPoolCommand) (*service.MatchResult, error)
}

// JobMetrics counts finished jobs. May be nil.
type JobMetrics interface {
	JobFinished(status string)
}

// MatchWorker consumes queued match jobs and runs the matching engine for each.
type MatchWorker struct {
	rabbit   messageConsumer
	matcher  matcher
	jobs     service.JobStore
	notifier service.Notifier
	metrics  JobMetrics
	prefetch int
	timeout  time.Duration
	log      logger.Logger
	now      func() time.Time
}

func NewMatchWorker(
	rabbit messageConsumer,
	matcher matcher,
	jobs service.JobStore,
	notifier service.Notifier,
	metrics JobMetrics,
	prefetch int,
	timeout time.Duration,
	log logger.Logger,
) *MatchWorker {
	return &MatchWorker{
		rabbit:   rabbit,
		matcher:  matcher,
		jobs:     jobs,
		notifier: notifier,
		metrics:  metrics,
		prefetch: prefetch,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

// Start registers the handler on the match request queue. Deliveries are
// processed until ctx is cancelled or the connection is closed.
func (w *MatchWorker) Start(ctx context.Context) error {
	w.log.WithFields(logger.LogFields{
		"queue":    rabbitmq.MatchRequestQueue,
		"prefetch": w.prefetch,
	}).Info("consumer_starting", "Starting match worker")

	return w.rabbit.Consume(rabbitmq.MatchRequestQueue, w.prefetch, func(msg amqp.Delivery) {
		w.handle(ctx, msg)
	})
}

func (w *MatchWorker) handle(ctx context.Context, msg amqp.Delivery) {
	var job service.MatchJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		w.log.WithFields(logger.LogFields{"message_id": msg.MessageId}).Error("unmarshal_match_job_failed", err)
		w.nack(msg, false)
		w.finished(JobDeadLetter)
		return
	}

	log := w.log.WithFields(logger.LogFields{
		"job_id":       job.JobID,
		"passenger_id": job.Passenger.ID,
		"redelivered":  msg.Redelivered,
	})

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.jobs.MarkProcessing(ctx, job.JobID); err != nil {
		// The record may have expired; matching still proceeds.
		log.Error("mark_job_processing_failed", err)
	}

	req, err := job.RideRequest()
	if err != nil {
		w.fail(ctx, log, job, err)
		w.ack(msg)
		w.finished(JobFailed)
		return
	}

	result, err := w.matcher.Execute(ctx, service.MatchPoolCommand{JobID: job.JobID, Passenger: job.Passenger, Request: req})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidRequest):
		w.fail(ctx, log, job, err)
		w.ack(msg)
		w.finished(JobFailed)
		return
	case !msg.Redelivered:
		log.Error("match_job_retry", err)
		w.nack(msg, true)
		w.finished(JobRequeued)
		return
	default:
		w.fail(ctx, log, job, err)
		w.nack(msg, false)
		w.finished(JobDeadLetter)
		return
	}

	snapshot := result.Pool.SnapshotFor(job.Passenger.ID)
	if err := w.jobs.Complete(ctx, job.JobID, snapshot, result.IsNewPool); err != nil {
		log.Error("complete_job_failed", err)
	}

	event := domain.RideMatchedEvent{
		PassengerID: job.Passenger.ID,
		JobID:       job.JobID,
		Pool:        snapshot,
		IsNewPool:   result.IsNewPool,
		MatchedAt:   w.now(),
	}
	if err := w.notifier.Notify(ctx, job.Passenger.ID, event); err != nil {
		log.Error("ride_matched_notification_failed", err)
	}

	log.WithFields(logger.LogFields{
		"pool_id":     snapshot.ID,
		"is_new_pool": result.IsNewPool,
		"replayed":    result.Replayed,
	}).Info("match_job_completed", "Match job completed")

	w.ack(msg)
	w.finished(JobCompleted)
}

// fail records a terminal failure and tells the passenger.
func (w *MatchWorker) fail(ctx context.Context, log logger.Logger, job service.MatchJob, cause error) {
	log.Error("match_job_failed", cause)

	reason := failedMatchMessage
	if errors.Is(cause, domain.ErrInvalidRequest) {
		reason = cause.Error()
	}
	if err := w.jobs.Fail(ctx, job.JobID, reason); err != nil {
		log.Error("fail_job_failed", err)
	}

	event := domain.RideErrorEvent{
		PassengerID: job.Passenger.ID,
		JobID:       job.JobID,
		Message:     reason,
		FailedAt:    w.now(),
	}
	if err := w.notifier.Notify(ctx, job.Passenger.ID, event); err != nil {
		log.Error("ride_error_notification_failed", err)
	}
}

func (w *MatchWorker) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		w.log.Error("ack_failed", fmt.Errorf("ack %s: %w", msg.MessageId, err))
	}
}

func (w *MatchWorker) nack(msg amqp.Delivery, requeue bool) {
	if err := msg.Nack(false, requeue); err != nil {
		w.log.Error("nack_failed", fmt.Errorf("nack %s: %w", msg.MessageId, err))
	}
}

func (w *MatchWorker) finished(status string) {
	if w.metrics != nil {
		w.metrics.JobFinished(status)
	}
}
