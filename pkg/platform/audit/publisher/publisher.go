// Package publisher records audit entries to a store and fans them out to
// optional sinks. Publishing is advisory: callers log and count failures but
// never fail the business operation that produced the entry.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "dossier/pkg/domain"
	audit "dossier/pkg/platform/audit"

	"github.com/google/uuid"
)

var (
	// ErrBufferFull is returned in async mode when the buffer cannot accept
	// another entry.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrCircuitOpen is returned when the store has failed repeatedly and
	// writes are being shed.
	ErrCircuitOpen = errors.New("audit store circuit open")
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("audit publisher closed")
)

const (
	asyncWriteTimeout  = 5 * time.Second
	defaultSinkTimeout = 2 * time.Second
)

type namedSink struct {
	name string
	sink audit.Sink
}

// Publisher writes entries to a Store and any configured sinks.
type Publisher struct {
	store   audit.Store
	sinks   []namedSink
	logger  *slog.Logger
	metrics *Metrics
	breaker *breaker

	sinkTimeout time.Duration
	bufferSize  int
	ch         chan audit.Entry
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking; entries are persisted by a
// background goroutine and drained on Close. A size of zero keeps sync mode.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

// WithSink adds a secondary destination. Sink failures are logged and counted
// but never returned from Emit.
func WithSink(name string, sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, namedSink{name: name, sink: sink})
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSinkTimeout bounds each sink write. Non-positive values keep the default.
func WithSinkTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.sinkTimeout = d
		}
	}
}

// WithBreaker overrides the store circuit breaker thresholds.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(p *Publisher) {
		p.breaker = newBreaker(threshold, cooldown)
	}
}

// NewPublisher creates a Publisher in sync mode unless WithAsyncBuffer is given.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:       store,
		logger:      slog.Default(),
		breaker:     newBreaker(0, 0),
		sinkTimeout: defaultSinkTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.ch = make(chan audit.Entry, p.bufferSize)
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an entry. Missing ID, timestamp and category are filled in.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	entry = normalize(entry)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.incDropped("closed")
		return ErrClosed
	}

	if p.ch == nil {
		return p.persist(ctx, entry)
	}

	select {
	case p.ch <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.metrics.incDropped("buffer_full")
		return ErrBufferFull
	}
}

// List reads entries newest-first from the backing store.
func (p *Publisher) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	return p.store.List(ctx, filter)
}

// Close stops accepting entries and drains the async buffer.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.ch != nil {
		close(p.ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for entry := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		if err := p.persist(ctx, entry); err != nil {
			p.logger.Warn("async audit write failed",
				"action", entry.Action,
				"request_id", entry.RequestID,
				"error", err,
			)
		}
		cancel()
	}
}

// persist writes entry to the store and, only once the store has accepted
// it, streams it to the sinks.
func (p *Publisher) persist(ctx context.Context, entry audit.Entry) error {
	allowed := p.breaker.allow()
	p.metrics.setBreakerState(p.breaker.open())
	if !allowed {
		p.metrics.incDropped("breaker_open")
		return ErrCircuitOpen
	}

	if err := p.store.Append(ctx, entry); err != nil {
		p.metrics.incPersistFailures()
		if p.breaker.recordFailure() {
			p.logger.Error("audit store circuit opened", "error", err)
		}
		p.metrics.setBreakerState(p.breaker.open())
		return err
	}
	p.breaker.recordSuccess()
	p.metrics.incRecorded(string(entry.Category))

	p.fanOut(ctx, entry)
	return nil
}

// fanOut gives each sink at most sinkTimeout. The entry is already stored, so
// a slow or failing sink is only logged and counted.
func (p *Publisher) fanOut(ctx context.Context, entry audit.Entry) {
	for _, s := range p.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, p.sinkTimeout)
		err := s.sink.Append(sinkCtx, entry)
		cancel()
		if err != nil {
			p.metrics.incSinkFailures(s.name)
			p.logger.Warn("audit sink write failed",
				"sink", s.name,
				"action", entry.Action,
				"error", err,
			)
		}
	}
}

func normalize(entry audit.Entry) audit.Entry {
	if entry.ID.IsNil() {
		entry.ID = id.EntryID(uuid.New())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Category == "" {
		entry.Category = entry.Action.Category()
	}
	return entry
}
