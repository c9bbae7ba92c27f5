// Package outbox implements the broker's persist-before-publish pattern
// (spec §4.10): messages are durably recorded as Pending before a relay loop
// attempts to publish them, guaranteeing at-least-once external effects
// relative to a local transaction. Grounded on the documented Store/relay
// shape; the in-memory Store mirrors the pack's in-memory-first adapter
// convention (cache/streaming memory adapters).
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/logger"
)

// Status is the lifecycle state of an outbox record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// Record is a persisted to-be-published message.
type Record struct {
	ID          string
	TypeTag     string
	Payload     []byte
	Headers     map[string]string
	Status      Status
	CreatedAt   time.Time
	PublishedAt time.Time
	RetryCount  int
	LastError   string
}

// Store persists outbox records. A relay loop reads Pending records in
// creation order and transitions them to Published or Failed.
type Store interface {
	// Save persists a new record with Status=Pending, assigning ID and
	// CreatedAt if unset.
	Save(ctx context.Context, rec Record) (Record, error)

	// PendingBatch returns up to limit Pending records in creation order.
	PendingBatch(ctx context.Context, limit int) ([]Record, error)

	// MarkPublished transitions a record to Published.
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error

	// MarkFailed transitions a record to Failed, incrementing RetryCount
	// and recording lastErr.
	MarkFailed(ctx context.Context, id string, lastErr string) error

	// FailedBatch returns up to limit Failed records, for operator
	// inspection or re-driving.
	FailedBatch(ctx context.Context, limit int) ([]Record, error)
}

// MemoryStore is an in-memory reference Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	order   []string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Status = StatusPending

	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec, nil
}

func (s *MemoryStore) PendingBatch(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, limit)
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		if rec, ok := s.records[id]; ok && rec.Status == StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return broker.ErrInvalidArgument("unknown outbox record id")
	}
	rec.Status = StatusPublished
	rec.PublishedAt = publishedAt
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return broker.ErrInvalidArgument("unknown outbox record id")
	}
	rec.Status = StatusFailed
	rec.RetryCount++
	rec.LastError = lastErr
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) FailedBatch(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, limit)
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		if rec, ok := s.records[id]; ok && rec.Status == StatusFailed {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Options configures a Relay (§4.15; constructors do not call Validate).
type Options struct {
	BatchSize    int
	PollInterval time.Duration
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return broker.ErrInvalidOptions("outbox.batch_size must be positive")
	}
	if o.PollInterval <= 0 {
		return broker.ErrInvalidOptions("outbox.poll_interval must be positive")
	}
	return nil
}

// PublishFunc hands one outbox record to the real transport.
type PublishFunc func(ctx context.Context, rec Record) error

// Relay periodically drains Pending records from a Store and publishes
// them, in the teacher's idiom of a cancellable background loop joined via
// sync.WaitGroup on Stop (Design Note §9).
type Relay struct {
	opts    Options
	store   Store
	publish PublishFunc

	cancel func()
	wg     sync.WaitGroup
}

// NewRelay constructs a Relay.
func NewRelay(opts Options, store Store, publish PublishFunc) *Relay {
	return &Relay{opts: opts, store: store, publish: publish}
}

// Start launches the relay loop as a background goroutine.
func (r *Relay) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(loopCtx)
}

// Stop cancels the relay loop and waits for it to exit.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drainOnce(ctx)
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) {
	batch, err := r.store.PendingBatch(ctx, r.opts.BatchSize)
	if err != nil {
		logger.L().Error("outbox pending batch fetch failed", "error", err)
		return
	}
	for _, rec := range batch {
		if err := r.publish(ctx, rec); err != nil {
			if mErr := r.store.MarkFailed(ctx, rec.ID, err.Error()); mErr != nil {
				logger.L().Error("outbox mark failed error", "id", rec.ID, "error", mErr)
			}
			continue
		}
		if mErr := r.store.MarkPublished(ctx, rec.ID, time.Now()); mErr != nil {
			logger.L().Error("outbox mark published error", "id", rec.ID, "error", mErr)
		}
	}
}
