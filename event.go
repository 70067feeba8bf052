package mediator

import "context"

// DomainEventDispatcher raises domain events to every matching handler.
type DomainEventDispatcher struct {
	raise *dispatcher
}

func NewDomainEventDispatcher(source HandlerSource, opts ...Option) *DomainEventDispatcher {
	return &DomainEventDispatcher{
		raise: newDispatcher(source, DomainEventHandlerMarker, "Raise", newOptions(opts)),
	}
}

func (d *DomainEventDispatcher) Raise(ctx context.Context, event DomainEvent) error {
	return d.raise.fireForget(ctx, event)
}

func (d *DomainEventDispatcher) RaiseAsync(ctx context.Context, event DomainEvent) *Future[struct{}] {
	return fireForgetAsync(ctx, d.raise, event)
}

// RaiseMany clears the pending events of aggregate and raises them in order,
// stopping at the first error.
func (d *DomainEventDispatcher) RaiseMany(ctx context.Context, aggregate Aggregate) error {
	return raiseMany(ctx, d.raise, aggregate)
}

func (d *DomainEventDispatcher) RaiseManyAsync(ctx context.Context, aggregate Aggregate) *Future[struct{}] {
	if isNilRequest(aggregate) {
		return resolvedFuture(struct{}{}, raiseMany(ctx, d.raise, aggregate))
	}
	return goFuture(func() (struct{}, error) {
		return struct{}{}, raiseMany(ctx, d.raise, aggregate)
	})
}

// IntegrationEventDispatcher publishes integration events to every matching handler.
type IntegrationEventDispatcher struct {
	publish *dispatcher
}

func NewIntegrationEventDispatcher(source HandlerSource, opts ...Option) *IntegrationEventDispatcher {
	return &IntegrationEventDispatcher{
		publish: newDispatcher(source, IntegrationEventHandlerMarker, "Publish", newOptions(opts)),
	}
}

func (d *IntegrationEventDispatcher) Publish(ctx context.Context, event IntegrationEvent) error {
	return d.publish.fireForget(ctx, event)
}

func (d *IntegrationEventDispatcher) PublishAsync(ctx context.Context, event IntegrationEvent) *Future[struct{}] {
	return fireForgetAsync(ctx, d.publish, event)
}
