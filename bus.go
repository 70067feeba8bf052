package mediator

import (
	"context"
	"fmt"
	"sync"

	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Bus carries commands and integration events between processes. Outgoing
// requests are wrapped in a Message and published on the transport, incoming
// ones are decoded and handed to the mediator.
type Bus interface {
	Send(ctx context.Context, command Command) error
	Emit(ctx context.Context, event IntegrationEvent) error
	Start(ctx context.Context) error
	Shutdown() error
	IsRunning() bool
}

type busImpl struct {
	mediator  *Mediator
	transport Transport
	codec     *Codec
	options   Options
	tracer    trace.Tracer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	mu        sync.RWMutex
}

// Send publishes command for the mediator on the receiving side to commit
func (b *busImpl) Send(ctx context.Context, command Command) error {
	return b.send(ctx, command)
}

// Emit publishes event for the mediator on the receiving side to publish
func (b *busImpl) Emit(ctx context.Context, event IntegrationEvent) error {
	return b.send(ctx, event)
}

func (b *busImpl) send(ctx context.Context, request Request) error {
	b.mu.RLock()
	started, busCtx := b.started, b.ctx
	b.mu.RUnlock()

	if !started {
		return ErrBusNotStarted
	}
	if isNilRequest(request) {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	// A publish blocked on a full transport gives up once the bus shuts down.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(busCtx, cancel)
	defer stop()

	ctx, span := b.tracer.Start(ctx, "mediator.Bus.Send", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	headers := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, headers)

	msg, err := NewMessage(b.options.Source, request, WithMessageHeaders(headers))
	if err == nil {
		span.SetAttributes(attribute.String("mediator.message_id", msg.ID), attribute.String("mediator.message_type", msg.Type))
		var payload []byte
		if payload, err = b.codec.Encode(msg); err == nil {
			err = b.transport.Publish(ctx, payload)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.options.Metrics.observeBus("out", "failed")
		b.options.Logger.ErrorContext(ctx, "failed to send message", "request_type", TypeName(request), "error", err)
		return err
	}

	b.options.Metrics.observeBus("out", "success")
	return nil
}

// Start subscribes to the transport and begins dispatching received messages
func (b *busImpl) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrBusAlreadyStarted
	}
	if !b.transport.IsConnected() {
		return ErrTransportNotConnected
	}
	if err := b.transport.Subscribe(ctx); err != nil {
		return err
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processMessages()
	}()

	b.started = true
	return nil
}

// processMessages hands received payloads to at most Workers goroutines.
// It returns once the transport channel closes or the bus is shut down.
func (b *busImpl) processMessages() {
	var g errgroup.Group
	g.SetLimit(b.options.Workers)
	defer g.Wait()

	msgChan := b.transport.Messages()
	for {
		select {
		case payload, ok := <-msgChan:
			if !ok {
				return
			}
			g.Go(func() error {
				b.receive(payload)
				return nil
			})
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *busImpl) receive(payload []byte) {
	msg, err := b.codec.Decode(payload)
	if err != nil {
		b.fail(b.ctx, msg, err)
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(b.ctx, propagation.MapCarrier(msg.Headers))
	ctx, span := b.tracer.Start(ctx, "mediator.Bus.Receive", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("mediator.message_id", msg.ID),
			attribute.String("mediator.message_type", msg.Type),
		))
	defer span.End()

	switch request := msg.Data.(type) {
	case Command:
		err = b.mediator.Commit(ctx, request)
	case IntegrationEvent:
		err = b.mediator.Publish(ctx, request)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedRequest, msg.Type)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.fail(ctx, msg, err)
		return
	}
	b.options.Metrics.observeBus("in", "success")
}

func (b *busImpl) fail(ctx context.Context, msg Message[Request], err error) {
	b.options.Metrics.observeBus("in", "failed")
	b.options.Logger.ErrorContext(ctx, "failed to handle message", "message_id", msg.ID, "message_type", msg.Type, "error", err)
	b.options.OnError(ctx, msg, err)
}

// IsRunning returns true if the bus is consuming messages
func (b *busImpl) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

// Shutdown stops consuming, closes the transport and waits for in-flight
// messages to finish.
func (b *busImpl) Shutdown() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	err := b.transport.Close()
	b.wg.Wait()
	return err
}

// NewBus creates a Bus that dispatches received messages through m
func NewBus(m *Mediator, transport Transport, codec *Codec, opts ...Option) Bus {
	options := newOptions(opts)
	return &busImpl{
		mediator:  m,
		transport: transport,
		codec:     codec,
		options:   options,
		tracer:    options.TracerProvider.Tracer(tracerName),
	}
}

// NewValkeyBus creates a Bus on a valkey pub/sub channel
func NewValkeyBus(m *Mediator, codec *Codec, client valkey.Client, channel string, opts ...Option) Bus {
	return NewBus(m, NewValkeyTransport(client, channel, opts...), codec, opts...)
}

// NewValkeyBusWithAddress creates a Bus on a valkey pub/sub channel using an address
func NewValkeyBusWithAddress(m *Mediator, codec *Codec, address, channel string, opts ...Option) (Bus, error) {
	client, err := NewValkeyClient(address)
	if err != nil {
		return nil, err
	}
	return NewValkeyBus(m, codec, client, channel, opts...), nil
}
