// Package poison implements the broker's poison-message quarantine (spec
// §4.9): per-message-id failure tracking that, once FailureThreshold is
// crossed, moves the message and its accumulated failure context atomically
// into a quarantine store. Grounded on the teacher's outbox-shaped
// persistence pattern (status + retry bookkeeping) applied to failure
// tracking instead of publish tracking.
package poison

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Options configures a Tracker (§4.15; constructors do not call Validate).
type Options struct {
	FailureThreshold int
	RetentionPeriod  time.Duration
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	if o.FailureThreshold <= 0 {
		return broker.ErrInvalidOptions("poison_message.failure_threshold must be positive")
	}
	if o.RetentionPeriod <= 0 {
		return broker.ErrInvalidOptions("poison_message.retention_period must be positive")
	}
	return nil
}

// Record is a quarantined message and its accumulated failure context.
type Record struct {
	ID                string
	OriginalMessageID string
	TypeTag           string
	Payload           []byte
	FailureCount      int
	Errors            []string
	FirstFailureAt    time.Time
	LastFailureAt     time.Time
	Headers           map[string]string
	RoutingKey        string
	Exchange          string
	CorrelationID     string
}

type tracking struct {
	count          int
	errors         []string
	firstFailureAt time.Time
	lastFailureAt  time.Time
}

// Tracker accumulates per-message-id failures and quarantines once
// FailureThreshold is crossed.
type Tracker struct {
	opts Options

	mu       sync.Mutex
	inFlight map[string]*tracking
	store    map[string]Record
}

// New constructs a Tracker.
func New(opts Options) *Tracker {
	return &Tracker{
		opts:     opts,
		inFlight: make(map[string]*tracking),
		store:    make(map[string]Record),
	}
}

// RecordFailure accumulates a failure for msg. Once the accumulated count
// reaches FailureThreshold, the message is moved atomically into the
// quarantine store and the in-memory tracker entry is cleared. Returns true
// if this call caused quarantine.
func (t *Tracker) RecordFailure(msg broker.WireMessage, routingKey, exchange string, failErr error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	tr, ok := t.inFlight[msg.ID]
	if !ok {
		tr = &tracking{firstFailureAt: now}
		t.inFlight[msg.ID] = tr
	}
	tr.count++
	tr.lastFailureAt = now
	if failErr != nil {
		tr.errors = append(tr.errors, failErr.Error())
	}

	if tr.count < t.opts.FailureThreshold {
		return false
	}

	t.store[msg.ID] = Record{
		ID:                uuid.NewString(),
		OriginalMessageID: msg.ID,
		TypeTag:           msg.TypeTag,
		Payload:           msg.Payload,
		FailureCount:      tr.count,
		Errors:            tr.errors,
		FirstFailureAt:    tr.firstFailureAt,
		LastFailureAt:     tr.lastFailureAt,
		Headers:           msg.Headers,
		RoutingKey:        routingKey,
		Exchange:          exchange,
		CorrelationID:     msg.CorrelationID,
	}
	delete(t.inFlight, msg.ID)
	return true
}

// Reprocess removes a record from the quarantine store and returns it for
// re-dispatch. The second return is false if no such record exists.
func (t *Tracker) Reprocess(originalMessageID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.store[originalMessageID]
	if ok {
		delete(t.store, originalMessageID)
	}
	return rec, ok
}

// List returns a bounded batch of quarantined records for operator
// inspection, in no particular order.
func (t *Tracker) List(limit int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, limit)
	for _, rec := range t.store {
		if len(out) >= limit {
			break
		}
		out = append(out, rec)
	}
	return out
}

// Sweep removes quarantined records whose LastFailureAt is older than
// RetentionPeriod.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.opts.RetentionPeriod)
	for id, rec := range t.store {
		if rec.LastFailureAt.Before(cutoff) {
			delete(t.store, id)
		}
	}
}
