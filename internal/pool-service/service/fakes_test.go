package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"ride-pool/internal/pool-service/domain"
)

// memPoolRepo is an in-memory PoolRepository. Every write replaces the
// stored pool with a copy, as a single-transaction store would.
type memPoolRepo struct {
	mu       sync.Mutex
	pools    map[string]*domain.RidePool
	logs     []domain.PricingLog
	saveErr  error
	findErr  error
	creates  int
	joins    int
	removals int
}

func newMemPoolRepo() *memPoolRepo {
	return &memPoolRepo{pools: make(map[string]*domain.RidePool)}
}

func (r *memPoolRepo) FindNearbyOpen(_ context.Context, point domain.Coordinate, terminal string, radiusKm float64) ([]*domain.RidePool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*domain.RidePool
	for _, p := range r.pools {
		if p.Status() == domain.StatusOpen && p.TerminalCode() == terminal && p.StartLocation().DistanceTo(point) <= radiusKm {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartLocation().DistanceTo(point) < out[j].StartLocation().DistanceTo(point)
	})
	return out, nil
}

func (r *memPoolRepo) FindByID(_ context.Context, poolID string) (*domain.RidePool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[poolID]
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return p.Clone(), nil
}

func (r *memPoolRepo) FindByRequestKey(_ context.Context, key string) (*domain.RidePool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		if p.HasRequestKey(key) && !p.Status().IsClosed() {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrPoolNotFound
}

func (r *memPoolRepo) FindOpen(_ context.Context) ([]*domain.RidePool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.RidePool
	for _, p := range r.pools {
		if p.Status() == domain.StatusOpen {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *memPoolRepo) Create(_ context.Context, pool *domain.RidePool, log domain.PricingLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, m := range pool.Members() {
		if r.keyTaken(m.RequestKey) {
			return errors.New("duplicate request key")
		}
	}
	r.pools[pool.ID()] = pool.Clone()
	r.logs = append(r.logs, log)
	r.creates++
	return nil
}

func (r *memPoolRepo) SaveJoin(_ context.Context, pool *domain.RidePool, member domain.Membership, log domain.PricingLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.keyTaken(member.RequestKey) {
		return errors.New("duplicate request key")
	}
	r.pools[pool.ID()] = pool.Clone()
	r.logs = append(r.logs, log)
	r.joins++
	return nil
}

func (r *memPoolRepo) SaveRemoval(_ context.Context, pool *domain.RidePool, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.pools[pool.ID()] = pool.Clone()
	r.removals++
	return nil
}

func (r *memPoolRepo) SaveStatus(_ context.Context, pool *domain.RidePool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.pools[pool.ID()] = pool.Clone()
	return nil
}

func (r *memPoolRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.pools {
		if (p.Status() == domain.StatusOpen || p.Status() == domain.StatusLocked) && p.IsExpired(now) {
			delete(r.pools, id)
			n++
		}
	}
	return n, nil
}

func (r *memPoolRepo) put(p *domain.RidePool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[p.ID()] = p.Clone()
}

func (r *memPoolRepo) all() []*domain.RidePool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.RidePool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p.Clone())
	}
	return out
}

func (r *memPoolRepo) keyTaken(key string) bool {
	if key == "" {
		return false
	}
	for _, p := range r.pools {
		if p.HasRequestKey(key) {
			return true
		}
	}
	return false
}

// memLocker is an in-process Locker with the same fencing rules as the
// Redis implementation.
type memLocker struct {
	mu       sync.Mutex
	held     map[string]Lease
	acquired int
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]Lease)}
}

func (l *memLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && time.Now().Before(cur.ExpiresAt) {
		return Lease{}, false, nil
	}
	lease := Lease{Key: key, Token: uuid.NewString(), ExpiresAt: time.Now().Add(ttl)}
	l.held[key] = lease
	l.acquired++
	return lease, true, nil
}

func (l *memLocker) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[lease.Key]; ok && cur.Token == lease.Token {
		delete(l.held, lease.Key)
	}
	return nil
}

func (l *memLocker) Extend(_ context.Context, lease Lease, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[lease.Key]
	if !ok || cur.Token != lease.Token || !time.Now().Before(cur.ExpiresAt) {
		return false, nil
	}
	cur.ExpiresAt = time.Now().Add(ttl)
	l.held[lease.Key] = cur
	return true, nil
}

// hold takes key on behalf of some other process.
func (l *memLocker) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = Lease{Key: key, Token: "other", ExpiresAt: time.Now().Add(time.Hour)}
}

func (l *memLocker) heldCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID string, event domain.DomainEvent) error {
	args := m.Called(ctx, userID, event)
	return args.Error(0)
}

type mockJobQueue struct {
	mock.Mock
}

func (m *mockJobQueue) Enqueue(ctx context.Context, job MatchJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]JobRecord
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]JobRecord)}
}

func (s *memJobStore) Create(_ context.Context, job JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStore) MarkProcessing(_ context.Context, jobID string) error {
	return s.update(jobID, func(j *JobRecord) { j.Status = JobProcessing })
}

func (s *memJobStore) Complete(_ context.Context, jobID string, result domain.PoolSnapshot, isNewPool bool) error {
	return s.update(jobID, func(j *JobRecord) {
		j.Status = JobCompleted
		j.Result = &result
		j.IsNewPool = isNewPool
	})
}

func (s *memJobStore) Fail(_ context.Context, jobID string, reason string) error {
	return s.update(jobID, func(j *JobRecord) {
		j.Status = JobFailed
		j.Error = reason
	})
}

func (s *memJobStore) Get(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &j, nil
}

func (s *memJobStore) update(jobID string, fn func(*JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(&j)
	s.jobs[jobID] = j
	return nil
}
