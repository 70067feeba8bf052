package mediator

import (
	"fmt"
	"reflect"
)

// Marker identifies one of the four handler capabilities.
type Marker string

const (
	CommandHandlerMarker          Marker = "CommandHandler"
	QueryHandlerMarker            Marker = "QueryHandler"
	DomainEventHandlerMarker      Marker = "DomainEventHandler"
	IntegrationEventHandlerMarker Marker = "IntegrationEventHandler"
)

// Markers returns every marker in a fixed order.
func Markers() []Marker {
	return []Marker{
		CommandHandlerMarker,
		DomainEventHandlerMarker,
		IntegrationEventHandlerMarker,
		QueryHandlerMarker,
	}
}

// Family names the request family a marker's handlers accept.
func (m Marker) Family() string {
	switch m {
	case CommandHandlerMarker:
		return "Command"
	case QueryHandlerMarker:
		return "Query"
	case DomainEventHandlerMarker:
		return "DomainEvent"
	case IntegrationEventHandlerMarker:
		return "IntegrationEvent"
	default:
		return "Unknown"
	}
}

func (m Marker) String() string { return string(m) }

func (m Marker) valid() bool {
	switch m {
	case CommandHandlerMarker, QueryHandlerMarker, DomainEventHandlerMarker, IntegrationEventHandlerMarker:
		return true
	}
	return false
}

// CommandHandler is implemented by objects that handle commands.
type CommandHandler interface {
	Commands() *Registry
}

// QueryHandler is implemented by objects that answer queries.
type QueryHandler interface {
	Queries() *Registry
}

// DomainEventHandler is implemented by objects that react to domain events.
type DomainEventHandler interface {
	DomainEvents() *Registry
}

// IntegrationEventHandler is implemented by objects that react to integration events.
type IntegrationEventHandler interface {
	IntegrationEvents() *Registry
}

var (
	commandHandlerType          = reflect.TypeFor[CommandHandler]()
	queryHandlerType            = reflect.TypeFor[QueryHandler]()
	domainEventHandlerType      = reflect.TypeFor[DomainEventHandler]()
	integrationEventHandlerType = reflect.TypeFor[IntegrationEventHandler]()
)

// RegistryOf returns the registry handler exposes for marker.
func RegistryOf(marker Marker, handler any) (*Registry, error) {
	switch marker {
	case CommandHandlerMarker:
		if h, ok := handler.(CommandHandler); ok {
			return h.Commands(), nil
		}
	case QueryHandlerMarker:
		if h, ok := handler.(QueryHandler); ok {
			return h.Queries(), nil
		}
	case DomainEventHandlerMarker:
		if h, ok := handler.(DomainEventHandler); ok {
			return h.DomainEvents(), nil
		}
	case IntegrationEventHandlerMarker:
		if h, ok := handler.(IntegrationEventHandler); ok {
			return h.IntegrationEvents(), nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown marker %q", ErrInvalidHandler, marker)
	}
	return nil, fmt.Errorf("%w: %s is not a %s", ErrInvalidHandler, TypeName(handler), marker)
}

// MarkersOf lists the markers handler satisfies.
func MarkersOf(handler any) []Marker {
	if handler == nil {
		return nil
	}
	return markersOfType(reflect.TypeOf(handler))
}

func markersOfType(t reflect.Type) []Marker {
	var markers []Marker
	if t.Implements(commandHandlerType) {
		markers = append(markers, CommandHandlerMarker)
	}
	if t.Implements(domainEventHandlerType) {
		markers = append(markers, DomainEventHandlerMarker)
	}
	if t.Implements(integrationEventHandlerType) {
		markers = append(markers, IntegrationEventHandlerMarker)
	}
	if t.Implements(queryHandlerType) {
		markers = append(markers, QueryHandlerMarker)
	}
	return markers
}
