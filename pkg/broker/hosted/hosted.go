// Package hosted adapts a broker.Base to the minimal Start/Stop lifecycle a
// host framework expects (spec §4.14), matching the "services/*"
// hosted-service convention implied by the teacher's service templates:
// a process-wide broker instance whose lifecycle is bound to the host's.
package hosted

import (
	"context"
	"sync"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Service implements a minimal hosted-service contract: Start(ctx) error /
// Stop(ctx) error, any host framework can call. Dispose is invoked exactly
// once, from Stop, since this wrapper assumes the host calls Stop exactly
// once at shutdown.
type Service struct {
	base *broker.Base

	mu       sync.Mutex
	disposed bool
}

// New wraps base as a hosted Service.
func New(base *broker.Base) *Service {
	return &Service{base: base}
}

// Start starts the underlying broker. Idempotent per broker.Base's
// lifecycle contract.
func (s *Service) Start(ctx context.Context) error {
	return s.base.Start(ctx)
}

// Stop stops the broker and disposes it exactly once.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.base.Stop(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.disposed = true
	return s.base.Dispose()
}

// Healthy reports the underlying broker's health, for host readiness/liveness probes.
func (s *Service) Healthy(ctx context.Context) bool {
	return s.base.Healthy(ctx)
}
