package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Persister stores one record durably.
type Persister interface {
	Persist(ctx context.Context, rec Record) error
}

// SinkMetrics receives sink counters.
type SinkMetrics interface {
	AuditEnqueued()
	AuditFallback()
	AuditQueueDepth(depth int)
}

const persistTimeout = 5 * time.Second

// Sink buffers access records on a bounded channel drained by a single
// consumer, keeping persistence off the check path. When the channel is full
// the producer persists synchronously instead, so a record is never silently
// dropped. Capacity zero disables auditing entirely.
type Sink struct {
	persister Persister
	logger    *slog.Logger
	metrics   SinkMetrics
	ch        chan Record
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSink builds a Sink instance. Call Start before recording.
func NewSink(persister Persister, capacity int, logger *slog.Logger, metrics SinkMetrics) *Sink {
	s := &Sink{persister: persister, logger: logger, metrics: metrics}
	if capacity > 0 {
		s.ch = make(chan Record, capacity)
	}
	return s
}

// Enabled reports whether records are kept at all.
func (s *Sink) Enabled() bool {
	return s != nil && s.ch != nil
}

// Start launches the single consumer. The consumer is deliberately not
// parallelized so record order stays deterministic per process.
func (s *Sink) Start() {
	if !s.Enabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for rec := range s.ch {
			s.persist(rec)
			if s.metrics != nil {
				s.metrics.AuditQueueDepth(len(s.ch))
			}
		}
	}()
}

// Record hands one record to the consumer, falling back to synchronous
// persistence when the channel is full or the sink is already closed.
// Persistence failures are logged and never surfaced; the check outcome must
// not depend on audit durability.
func (s *Sink) Record(rec Record) {
	if !s.Enabled() {
		return
	}
	// The closed check and the send share the mutex so a concurrent Close
	// cannot close the channel between them.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.AuditFallback()
		}
		s.persist(rec)
		return
	}
	select {
	case s.ch <- rec:
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.AuditEnqueued()
			s.metrics.AuditQueueDepth(len(s.ch))
		}
	default:
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.AuditFallback()
		}
		s.persist(rec)
	}
}

// Close stops accepting records and waits for the consumer to drain.
func (s *Sink) Close() {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sink) persist(rec Record) {
	// Detached from the request context so a cancelled check cannot lose
	// its audit record.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Persist(ctx, rec); err != nil && s.logger != nil {
		s.logger.Error("audit persist", slog.Int64("viewer_id", rec.ViewerID), slog.Any("error", err))
	}
}
