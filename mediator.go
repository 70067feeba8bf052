package mediator

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Mediator routes commands, queries, domain events and integration events
// through one handler source.
type Mediator struct {
	commands          *CommandDispatcher
	domainEvents      *DomainEventDispatcher
	integrationEvents *IntegrationEventDispatcher
	queries           *QueryDispatcher

	source  HandlerSource
	options Options

	describeOnce sync.Once
	descriptor   atomic.Pointer[Descriptor]
	describeErr  error
}

func NewMediator(source HandlerSource, opts ...Option) *Mediator {
	options := newOptions(opts)
	return &Mediator{
		commands:          &CommandDispatcher{commit: newDispatcher(source, CommandHandlerMarker, "Commit", options)},
		domainEvents:      &DomainEventDispatcher{raise: newDispatcher(source, DomainEventHandlerMarker, "Raise", options)},
		integrationEvents: &IntegrationEventDispatcher{publish: newDispatcher(source, IntegrationEventHandlerMarker, "Publish", options)},
		queries:           &QueryDispatcher{dispatch: newDispatcher(source, QueryHandlerMarker, "Query", options)},
		source:            source,
		options:           options,
	}
}

func (m *Mediator) Commit(ctx context.Context, command Command) error {
	return m.commands.Commit(ctx, command)
}

func (m *Mediator) CommitAsync(ctx context.Context, command Command) *Future[struct{}] {
	return m.commands.CommitAsync(ctx, command)
}

func (m *Mediator) Raise(ctx context.Context, event DomainEvent) error {
	return m.domainEvents.Raise(ctx, event)
}

func (m *Mediator) RaiseAsync(ctx context.Context, event DomainEvent) *Future[struct{}] {
	return m.domainEvents.RaiseAsync(ctx, event)
}

func (m *Mediator) RaiseMany(ctx context.Context, aggregate Aggregate) error {
	return m.domainEvents.RaiseMany(ctx, aggregate)
}

func (m *Mediator) RaiseManyAsync(ctx context.Context, aggregate Aggregate) *Future[struct{}] {
	return m.domainEvents.RaiseManyAsync(ctx, aggregate)
}

func (m *Mediator) Publish(ctx context.Context, event IntegrationEvent) error {
	return m.integrationEvents.Publish(ctx, event)
}

func (m *Mediator) PublishAsync(ctx context.Context, event IntegrationEvent) *Future[struct{}] {
	return m.integrationEvents.PublishAsync(ctx, event)
}

// Queries returns the dispatcher used by Ask and AskAsync.
func (m *Mediator) Queries() *QueryDispatcher {
	return m.queries
}

func (m *Mediator) dispatchQuery(ctx context.Context, request Query, resultType reflect.Type) (any, error) {
	return m.queries.dispatchQuery(ctx, request, resultType)
}

// Describe discovers the handlers of the mediator's source on first call and
// logs the result. Later calls return the same snapshot without resolving again.
func (m *Mediator) Describe(ctx context.Context) (*Descriptor, error) {
	m.describeOnce.Do(func() {
		d, err := Discover(ctx, m.source)
		if err != nil {
			m.describeErr = err
			m.options.Logger.ErrorContext(ctx, "handler discovery failed", "error", err)
			return
		}
		m.descriptor.Store(d)
		m.options.Logger.InfoContext(ctx, "handlers discovered", "descriptor", d)
	})
	return m.descriptor.Load(), m.describeErr
}

// Descriptor returns the snapshot built by Describe, or nil if Describe was
// never called.
func (m *Mediator) Descriptor() *Descriptor {
	return m.descriptor.Load()
}
