package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/internal/pool-service/service"
)

// JobTTL is how long a job record stays pollable after its last update.
const JobTTL = 24 * time.Hour

// RedisJobStore keeps each job as a hash under job:<id>
type RedisJobStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

var _ service.JobStore = (*RedisJobStore)(nil)

func NewRedisJobStore(client redis.UniversalClient) *RedisJobStore {
	return &RedisJobStore{client: client, ttl: JobTTL, now: time.Now}
}

func jobKey(jobID string) string {
	return "job:" + jobID
}

func (s *RedisJobStore) Create(ctx context.Context, job service.JobRecord) error {
	return s.write(ctx, job.ID, map[string]any{
		"passenger_id": job.PassengerID,
		"status":       string(job.Status),
		"created_at":   job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *RedisJobStore) MarkProcessing(ctx context.Context, jobID string) error {
	return s.update(ctx, jobID, map[string]any{"status": string(service.JobProcessing)})
}

func (s *RedisJobStore) Complete(ctx context.Context, jobID string, result domain.PoolSnapshot, isNewPool bool) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	return s.update(ctx, jobID, map[string]any{
		"status":      string(service.JobCompleted),
		"result":      data,
		"is_new_pool": strconv.FormatBool(isNewPool),
		"error":       "",
	})
}

func (s *RedisJobStore) Fail(ctx context.Context, jobID string, reason string) error {
	return s.update(ctx, jobID, map[string]any{
		"status": string(service.JobFailed),
		"error":  reason,
	})
}

func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*service.JobRecord, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, service.ErrJobNotFound
	}

	job := &service.JobRecord{
		ID:          jobID,
		PassengerID: fields["passenger_id"],
		Status:      service.JobStatus(fields["status"]),
		Error:       fields["error"],
	}
	job.IsNewPool, _ = strconv.ParseBool(fields["is_new_pool"])
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if raw := fields["result"]; raw != "" {
		var snapshot domain.PoolSnapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &snapshot
	}
	return job, nil
}

// update refuses to resurrect a job whose record has expired.
func (s *RedisJobStore) update(ctx context.Context, jobID string, fields map[string]any) error {
	n, err := s.client.Exists(ctx, jobKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("check job %s: %w", jobID, err)
	}
	if n == 0 {
		return service.ErrJobNotFound
	}
	fields["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
	return s.write(ctx, jobID, fields)
}

func (s *RedisJobStore) write(ctx context.Context, jobID string, fields map[string]any) error {
	key := jobKey(jobID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write job %s: %w", jobID, err)
	}
	return nil
}
