package mediator

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Aggregate collects the domain events an aggregate root produced until they
// are raised.
type Aggregate interface {
	Events() []DomainEvent
	ClearEvents()
}

// AggregateBase is an embeddable Aggregate.
type AggregateBase struct {
	mu     sync.Mutex
	events []DomainEvent
}

// AddEvent records event for the next RaiseMany.
func (a *AggregateBase) AddEvent(event DomainEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *AggregateBase) Events() []DomainEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.events)
}

func (a *AggregateBase) ClearEvents() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = nil
}

// raiseMany takes the pending events of aggregate, clears them and raises
// them in order. Events after a failing one are not raised.
func raiseMany(ctx context.Context, d *dispatcher, aggregate Aggregate) error {
	if isNilRequest(aggregate) {
		return fmt.Errorf("%w: nil aggregate", ErrInvalidRequest)
	}
	events := aggregate.Events()
	aggregate.ClearEvents()
	for _, event := range events {
		if err := d.fireForget(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
