package audit

import (
	"context"
	"log/slog"
	"sync"

	"keystone/pkg/requestcontext"
)

// Publisher writes every event as a structured log line and appends it to
// the store. Storage failures are logged, never returned: auditing must not
// turn a successful operation into a failed one.
type Publisher struct {
	store  Store
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer persists events from a background goroutine. Events are
// dropped, with a warning, when the buffer is full.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		p.persist(context.Background(), event)
	}
}

// Close drains pending async events.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit records event, filling in the timestamp and request ID from ctx.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	p.logger.InfoContext(ctx, string(event.Action),
		"log_type", "audit",
		"actor_id", event.ActorID,
		"subject_id", event.SubjectID,
		"tenant_id", event.TenantID,
		"app_slug", event.AppSlug,
		"decision", event.Decision,
		"reason", event.Reason,
		"timestamp", event.Timestamp,
		"request_id", event.RequestID,
	)

	if p.store == nil {
		return
	}
	if p.async {
		select {
		case p.events <- event:
		default:
			p.logger.WarnContext(ctx, "audit buffer full, event dropped",
				"action", event.Action,
				"subject_id", event.SubjectID,
			)
		}
		return
	}
	p.persist(ctx, event)
}

func (p *Publisher) persist(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to persist audit event",
			"error", err,
			"action", event.Action,
			"subject_id", event.SubjectID,
		)
	}
}

func (p *Publisher) List(ctx context.Context, subjectID string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subjectID)
}
