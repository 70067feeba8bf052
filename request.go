package mediator

import (
	"reflect"
)

// Request is implemented by every message the mediator routes.
// Concrete requests embed one of the family markers below.
type Request interface {
	request()
}

// Command represents an intent to change state
type Command interface {
	Request
	command()
}

// Query represents a request for data that produces a result
type Query interface {
	Request
	query()
}

// DomainEvent represents something that happened inside a bounded context
type DomainEvent interface {
	Request
	domainEvent()
}

// IntegrationEvent represents something that happened that other contexts may care about
type IntegrationEvent interface {
	Request
	integrationEvent()
}

// CommandBase makes the embedding struct a Command.
type CommandBase struct{}

func (CommandBase) request() {}
func (CommandBase) command() {}

// QueryBase makes the embedding struct a Query.
type QueryBase struct{}

func (QueryBase) request() {}
func (QueryBase) query()   {}

// DomainEventBase makes the embedding struct a DomainEvent.
type DomainEventBase struct{}

func (DomainEventBase) request()     {}
func (DomainEventBase) domainEvent() {}

// IntegrationEventBase makes the embedding struct an IntegrationEvent.
type IntegrationEventBase struct{}

func (IntegrationEventBase) request()          {}
func (IntegrationEventBase) integrationEvent() {}

var (
	requestType          = reflect.TypeFor[Request]()
	commandType          = reflect.TypeFor[Command]()
	queryType            = reflect.TypeFor[Query]()
	domainEventType      = reflect.TypeFor[DomainEvent]()
	integrationEventType = reflect.TypeFor[IntegrationEvent]()
)

// TypeName returns the stable "pkgpath.Name" tag of v's type. Pointer types
// are prefixed with "*". v may be a value or a reflect.Type.
func TypeName(v any) string {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	return typeName(t)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + typeName(t.Elem())
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// shortTypeName strips the package path, e.g. "*CreateAccount".
func shortTypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + shortTypeName(t.Elem())
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// isNilRequest reports whether request is an untyped nil or a typed nil reference.
func isNilRequest(request any) bool {
	if request == nil {
		return true
	}
	v := reflect.ValueOf(request)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
