package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/TheAlpha16/mediator-go"

const (
	outcomeSuccess          = "success"
	outcomeInvalid          = "invalid"
	outcomeOrphaned         = "orphaned"
	outcomeAmbiguous        = "ambiguous"
	outcomeResolutionFailed = "resolution_failed"
	outcomeHandlerFailed    = "handler_failed"
)

// dispatcher holds the resolution and invocation logic shared by every
// public dispatcher. One instance serves one marker and one operation name.
type dispatcher struct {
	marker    Marker
	operation string
	source    HandlerSource
	options   Options
	tracer    trace.Tracer
}

func newDispatcher(source HandlerSource, marker Marker, operation string, options Options) *dispatcher {
	return &dispatcher{
		marker:    marker,
		operation: operation,
		source:    source,
		options:   options,
		tracer:    options.TracerProvider.Tracer(tracerName),
	}
}

type dispatchFunc func(ctx context.Context) (outcome string, matched int, err error)

func (d *dispatcher) instrument(ctx context.Context, request Request, fn dispatchFunc) error {
	start := time.Now()
	requestName := TypeName(request)

	ctx, span := d.tracer.Start(ctx, "mediator."+d.operation, trace.WithAttributes(
		attribute.String("mediator.marker", string(d.marker)),
		attribute.String("mediator.request_type", requestName),
	))
	defer span.End()

	outcome, matched, err := fn(ctx)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int("mediator.matched", matched),
		attribute.String("mediator.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	d.options.Metrics.observeDispatch(d.operation, d.marker, outcome, matched, elapsed)

	level := slog.LevelDebug
	switch outcome {
	case outcomeInvalid, outcomeOrphaned, outcomeAmbiguous:
		level = slog.LevelWarn
	case outcomeResolutionFailed, outcomeHandlerFailed:
		level = slog.LevelError
	}
	attrs := []any{
		"operation", d.operation,
		"marker", d.marker,
		"request_type", requestName,
		"matched", matched,
		"outcome", outcome,
		"duration", elapsed,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	d.options.Logger.Log(ctx, level, "request dispatched", attrs...)
	return err
}

// match resolves the handlers for the dispatcher's marker and probes each
// registry with the runtime type of request, keeping source order.
func (d *dispatcher) match(ctx context.Context, request Request) ([]*Thunk, error) {
	handlers, err := d.source.Resolve(ctx, d.marker)
	if err != nil {
		return nil, err
	}
	t := reflect.TypeOf(request)
	var matched []*Thunk
	for _, h := range handlers {
		registry, err := RegistryOf(d.marker, h)
		if err != nil {
			return nil, err
		}
		if thunk, ok := registry.lookupType(t); ok {
			matched = append(matched, thunk)
		}
	}
	return matched, nil
}

func (d *dispatcher) invalid() error {
	return fmt.Errorf("%w: nil %s", ErrInvalidRequest, d.marker.Family())
}

func (d *dispatcher) fireForget(ctx context.Context, request Request) error {
	return d.instrument(ctx, request, func(ctx context.Context) (string, int, error) {
		if isNilRequest(request) {
			return outcomeInvalid, 0, d.invalid()
		}
		thunks, err := d.match(ctx, request)
		if err != nil {
			return outcomeResolutionFailed, 0, err
		}
		if len(thunks) == 0 {
			return outcomeOrphaned, 0, &OrphanedHandlerError{Marker: d.marker, RequestType: reflect.TypeOf(request)}
		}
		if err := d.invokeAll(ctx, request, thunks); err != nil {
			return outcomeHandlerFailed, len(thunks), err
		}
		return outcomeSuccess, len(thunks), nil
	})
}

func (d *dispatcher) invokeAll(ctx context.Context, request Request, thunks []*Thunk) error {
	if d.options.MaxConcurrency > 0 && len(thunks) > 1 {
		p := pool.New().WithContext(ctx).WithFirstError().WithMaxGoroutines(d.options.MaxConcurrency)
		for _, thunk := range thunks {
			p.Go(func(ctx context.Context) error {
				_, err := thunk.invoke(ctx, request)
				return err
			})
		}
		return p.Wait()
	}

	for _, thunk := range thunks {
		if _, err := thunk.invoke(ctx, request); err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatcher) requestReply(ctx context.Context, request Request, resultType reflect.Type) (any, error) {
	var result any
	err := d.instrument(ctx, request, func(ctx context.Context) (string, int, error) {
		if isNilRequest(request) {
			return outcomeInvalid, 0, d.invalid()
		}
		thunks, err := d.match(ctx, request)
		if err != nil {
			return outcomeResolutionFailed, 0, err
		}

		var candidates []*Thunk
		for _, thunk := range thunks {
			if thunk.resultType != nil && thunk.resultType.AssignableTo(resultType) {
				candidates = append(candidates, thunk)
			}
		}

		switch len(candidates) {
		case 0:
			return outcomeOrphaned, 0, &OrphanedHandlerError{
				Marker:      d.marker,
				RequestType: reflect.TypeOf(request),
				ResultType:  resultType,
			}
		case 1:
		default:
			origins := make([]string, len(candidates))
			for i, c := range candidates {
				origins[i] = c.origin
			}
			return outcomeAmbiguous, len(candidates), &AmbiguousHandlerError{
				RequestType: reflect.TypeOf(request),
				ResultType:  resultType,
				Candidates:  origins,
			}
		}

		v, err := candidates[0].invoke(ctx, request)
		if err != nil {
			return outcomeHandlerFailed, 1, err
		}
		result = v
		return outcomeSuccess, 1, nil
	})
	return result, err
}
