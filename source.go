package mediator

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// HandlerSource yields the handler objects currently available for a marker.
// Dispatchers call Resolve on every dispatch and never cache its result.
type HandlerSource interface {
	Resolve(ctx context.Context, marker Marker) ([]any, error)
}

// HandlerSourceFunc adapts a function to HandlerSource.
type HandlerSourceFunc func(ctx context.Context, marker Marker) ([]any, error)

func (f HandlerSourceFunc) Resolve(ctx context.Context, marker Marker) ([]any, error) {
	return f(ctx, marker)
}

// Lifetime controls how often a catalog calls a handler factory.
type Lifetime int

const (
	// Transient creates a new handler on every resolve.
	Transient Lifetime = iota
	// Singleton creates the handler on first resolve and reuses it afterwards.
	Singleton
)

func (l Lifetime) String() string {
	if l == Singleton {
		return "singleton"
	}
	return "transient"
}

type catalogEntry struct {
	handlerType reflect.Type
	markers     []Marker
	lifetime    Lifetime
	factory     func() (any, error)

	mu       sync.Mutex
	instance any
}

func (e *catalogEntry) get() (any, error) {
	if e.lifetime == Transient {
		return e.create()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance != nil {
		return e.instance, nil
	}
	h, err := e.create()
	if err != nil {
		return nil, err
	}
	e.instance = h
	return h, nil
}

func (e *catalogEntry) create() (any, error) {
	h, err := e.factory()
	if err != nil {
		return nil, err
	}
	if isNilRequest(h) {
		return nil, fmt.Errorf("%w: factory for %s returned nil", ErrInvalidHandler, typeName(e.handlerType))
	}
	return h, nil
}

// Catalog is a static HandlerSource. Handlers are registered by type with a
// factory and resolved in registration order.
type Catalog struct {
	entries []*catalogEntry
	mu      sync.RWMutex
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// AddHandler registers a factory for handlers of type T. The markers T
// satisfies are read from the type itself, so no handler is built here.
func AddHandler[T any](c *Catalog, factory func() (T, error), lifetime Lifetime) error {
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrInvalidHandler, typeName(reflect.TypeFor[T]()))
	}
	return c.add(reflect.TypeFor[T](), lifetime, func() (any, error) {
		return factory()
	}, nil)
}

// AddInstance registers an already built handler as a singleton.
func (c *Catalog) AddInstance(handler any) error {
	if isNilRequest(handler) {
		return fmt.Errorf("%w: nil handler", ErrInvalidHandler)
	}
	return c.add(reflect.TypeOf(handler), Singleton, func() (any, error) {
		return handler, nil
	}, handler)
}

func (c *Catalog) add(t reflect.Type, lifetime Lifetime, factory func() (any, error), instance any) error {
	markers := markersOfType(t)
	if len(markers) == 0 {
		return fmt.Errorf("%w: %s implements no handler capability", ErrInvalidHandler, typeName(t))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.handlerType == t {
			return fmt.Errorf("%w: %s", ErrHandlerAlreadyExists, typeName(t))
		}
	}
	c.entries = append(c.entries, &catalogEntry{
		handlerType: t,
		markers:     markers,
		lifetime:    lifetime,
		factory:     factory,
		instance:    instance,
	})
	return nil
}

// Resolve returns the handlers registered for marker. Factory errors are
// returned as is.
func (c *Catalog) Resolve(_ context.Context, marker Marker) ([]any, error) {
	c.mu.RLock()
	entries := make([]*catalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if slices.Contains(e.markers, marker) {
			entries = append(entries, e)
		}
	}
	c.mu.RUnlock()

	handlers := make([]any, 0, len(entries))
	for _, e := range entries {
		h, err := e.get()
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

// Types lists the handler types registered for marker.
func (c *Catalog) Types(marker Marker) []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var types []reflect.Type
	for _, e := range c.entries {
		if slices.Contains(e.markers, marker) {
			types = append(types, e.handlerType)
		}
	}
	return types
}
