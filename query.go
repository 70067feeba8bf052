package mediator

import (
	"context"
	"reflect"
)

// Querier answers queries. It is implemented by *QueryDispatcher and *Mediator.
type Querier interface {
	dispatchQuery(ctx context.Context, request Query, resultType reflect.Type) (any, error)
}

// QueryDispatcher routes a query to the single handler that answers it.
type QueryDispatcher struct {
	dispatch *dispatcher
}

func NewQueryDispatcher(source HandlerSource, opts ...Option) *QueryDispatcher {
	return &QueryDispatcher{
		dispatch: newDispatcher(source, QueryHandlerMarker, "Query", newOptions(opts)),
	}
}

func (d *QueryDispatcher) dispatchQuery(ctx context.Context, request Query, resultType reflect.Type) (any, error) {
	return d.dispatch.requestReply(ctx, request, resultType)
}

// Ask returns the result of the one thunk registered for the query's runtime
// type whose result type is assignable to R. No match is an
// OrphanedHandlerError, more than one is an AmbiguousHandlerError.
func Ask[R any](ctx context.Context, q Querier, request Query) (R, error) {
	var zero R
	v, err := q.dispatchQuery(ctx, request, reflect.TypeFor[R]())
	if err != nil {
		return zero, err
	}
	r, ok := v.(R)
	if !ok {
		return zero, nil
	}
	return r, nil
}

// AskAsync is Ask on its own goroutine. A nil query resolves the returned
// future immediately.
func AskAsync[R any](ctx context.Context, q Querier, request Query) *Future[R] {
	if isNilRequest(request) {
		v, err := Ask[R](ctx, q, request)
		return resolvedFuture(v, err)
	}
	return goFuture(func() (R, error) {
		return Ask[R](ctx, q, request)
	})
}
