package mediator

import "context"

// Transport moves encoded messages between processes. It knows nothing about
// handlers or request types.
type Transport interface {
	// Publish sends an encoded message
	Publish(ctx context.Context, payload []byte) error

	// Subscribe starts listening for messages
	Subscribe(ctx context.Context) error

	// Messages returns the channel received payloads are delivered on.
	// It is closed when the transport is closed.
	Messages() <-chan []byte

	Close() error

	IsConnected() bool
}
