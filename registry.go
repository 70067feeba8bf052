package mediator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Kind tells fire-and-forget registries apart from request-reply ones.
type Kind int

const (
	FireForget Kind = iota
	RequestReply
)

func (k Kind) String() string {
	if k == RequestReply {
		return "request-reply"
	}
	return "fire-and-forget"
}

// Thunk is the callable bound to one concrete request type.
type Thunk struct {
	requestType reflect.Type
	resultType  reflect.Type
	async       bool
	origin      string
	invoke      func(ctx context.Context, request any) (any, error)
}

func (t *Thunk) RequestType() reflect.Type { return t.requestType }

// ResultType is nil for fire-and-forget thunks.
func (t *Thunk) ResultType() reflect.Type { return t.resultType }

// Async reports whether the thunk was registered with a context-aware function.
func (t *Thunk) Async() bool { return t.async }

// Origin names the function the thunk was registered from.
func (t *Thunk) Origin() string { return t.origin }

func (t *Thunk) Kind() Kind {
	if t.resultType != nil {
		return RequestReply
	}
	return FireForget
}

// Registry maps concrete request types to thunks. It is immutable once built.
type Registry struct {
	kind   Kind
	family reflect.Type
	thunks map[reflect.Type]*Thunk
	order  []reflect.Type
}

// Lookup probes the registry with the runtime type of request.
// The same *Thunk is returned on every call for the same type.
func (r *Registry) Lookup(request any) (*Thunk, bool) {
	if r == nil || request == nil {
		return nil, false
	}
	return r.lookupType(reflect.TypeOf(request))
}

func (r *Registry) lookupType(t reflect.Type) (*Thunk, bool) {
	if r == nil {
		return nil, false
	}
	thunk, ok := r.thunks[t]
	return thunk, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

func (r *Registry) Kind() Kind {
	if r == nil {
		return FireForget
	}
	return r.kind
}

// Thunks returns the registered thunks in registration order.
func (r *Registry) Thunks() []*Thunk {
	if r == nil {
		return nil
	}
	thunks := make([]*Thunk, 0, len(r.order))
	for _, t := range r.order {
		thunks = append(thunks, r.thunks[t])
	}
	return thunks
}

// RequestTypes returns the registered request types in registration order.
func (r *Registry) RequestTypes() []reflect.Type {
	if r == nil {
		return nil
	}
	types := make([]reflect.Type, len(r.order))
	copy(types, r.order)
	return types
}

// Builder collects registrations for one registry. It is only valid inside
// the setup function handed to a registry constructor.
type Builder struct {
	kind   Kind
	family reflect.Type
	thunks map[reflect.Type]*Thunk
	order  []reflect.Type
	errs   []error
	sealed bool
}

func newBuilder(kind Kind, family reflect.Type) *Builder {
	return &Builder{
		kind:   kind,
		family: family,
		thunks: make(map[reflect.Type]*Thunk),
	}
}

func (b *Builder) add(kind Kind, t reflect.Type, fn any, thunk *Thunk) {
	if b.sealed {
		panic("mediator: registration on a builder whose registry was already built")
	}
	if reflect.ValueOf(fn).IsNil() {
		b.errs = append(b.errs, fmt.Errorf("%w: nil function for %s", ErrInvalidRegistration, typeName(t)))
		return
	}
	if t.Kind() == reflect.Interface {
		b.errs = append(b.errs, fmt.Errorf("%w: %s must be a concrete type", ErrInvalidRegistration, typeName(t)))
		return
	}
	if !t.Implements(b.family) {
		b.errs = append(b.errs, fmt.Errorf("%w: %s is not a %s", ErrInvalidRegistration, typeName(t), b.family.Name()))
		return
	}
	if kind != b.kind {
		b.errs = append(b.errs, fmt.Errorf("%w: %s thunk for %s on a %s registry",
			ErrInvalidRegistration, kind, typeName(t), b.kind))
		return
	}
	if _, exists := b.thunks[t]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrHandlerAlreadyExists, typeName(t)))
		return
	}
	thunk.requestType = t
	thunk.origin = funcName(fn)
	b.thunks[t] = thunk
	b.order = append(b.order, t)
}

func (b *Builder) build() (*Registry, error) {
	b.sealed = true
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return &Registry{
		kind:   b.kind,
		family: b.family,
		thunks: b.thunks,
		order:  b.order,
	}, nil
}

// Register binds a synchronous fire-and-forget function to request type T.
func Register[T Request](b *Builder, fn func(T) error) {
	b.add(FireForget, reflect.TypeFor[T](), fn, &Thunk{
		invoke: func(_ context.Context, request any) (any, error) {
			return nil, fn(request.(T))
		},
	})
}

// RegisterContext binds a context-aware fire-and-forget function to request type T.
func RegisterContext[T Request](b *Builder, fn func(context.Context, T) error) {
	b.add(FireForget, reflect.TypeFor[T](), fn, &Thunk{
		async: true,
		invoke: func(ctx context.Context, request any) (any, error) {
			return nil, fn(ctx, request.(T))
		},
	})
}

// RegisterReply binds a synchronous request-reply function to request type T.
func RegisterReply[T Request, R any](b *Builder, fn func(T) (R, error)) {
	b.add(RequestReply, reflect.TypeFor[T](), fn, &Thunk{
		resultType: reflect.TypeFor[R](),
		invoke: func(_ context.Context, request any) (any, error) {
			return fn(request.(T))
		},
	})
}

// RegisterReplyContext binds a context-aware request-reply function to request type T.
func RegisterReplyContext[T Request, R any](b *Builder, fn func(context.Context, T) (R, error)) {
	b.add(RequestReply, reflect.TypeFor[T](), fn, &Thunk{
		resultType: reflect.TypeFor[R](),
		async:      true,
		invoke: func(ctx context.Context, request any) (any, error) {
			return fn(ctx, request.(T))
		},
	})
}

func newRegistry(kind Kind, family reflect.Type, setup func(*Builder)) (*Registry, error) {
	b := newBuilder(kind, family)
	if setup != nil {
		setup(b)
	}
	return b.build()
}

// NewCommandRegistry builds a registry of command thunks.
func NewCommandRegistry(setup func(*Builder)) (*Registry, error) {
	return newRegistry(FireForget, commandType, setup)
}

// NewDomainEventRegistry builds a registry of domain event thunks.
func NewDomainEventRegistry(setup func(*Builder)) (*Registry, error) {
	return newRegistry(FireForget, domainEventType, setup)
}

// NewIntegrationEventRegistry builds a registry of integration event thunks.
func NewIntegrationEventRegistry(setup func(*Builder)) (*Registry, error) {
	return newRegistry(FireForget, integrationEventType, setup)
}

// NewQueryRegistry builds a registry of query thunks.
func NewQueryRegistry(setup func(*Builder)) (*Registry, error) {
	return newRegistry(RequestReply, queryType, setup)
}

// MustRegistry panics if err is non-nil. It is meant for handler constructors
// whose registrations are fixed at compile time.
func MustRegistry(r *Registry, err error) *Registry {
	if err != nil {
		panic(err)
	}
	return r
}

func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "unknown"
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
