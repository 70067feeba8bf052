package mediator

import (
	"context"
	"slices"
	"sync"
)

// MemoryTransport is an in-process Transport. Published payloads are queued
// on a buffered channel and delivered to whoever reads Messages.
type MemoryTransport struct {
	mu         sync.RWMutex
	connected  bool
	subscribed bool
	msgChan    chan []byte
	closedChan chan struct{}
	once       sync.Once

	publishedMu sync.Mutex
	published   [][]byte
}

func NewMemoryTransport(opts ...Option) *MemoryTransport {
	options := newOptions(opts)
	return &MemoryTransport{
		connected:  true,
		msgChan:    make(chan []byte, options.MsgBufferSize),
		closedChan: make(chan struct{}),
	}
}

// Publish blocks while the queue is full, until ctx is done or the transport closes.
func (m *MemoryTransport) Publish(ctx context.Context, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return ErrTransportNotConnected
	}

	select {
	case m.msgChan <- payload:
		m.publishedMu.Lock()
		m.published = append(m.published, slices.Clone(payload))
		m.publishedMu.Unlock()
		return nil
	case <-m.closedChan:
		return ErrTransportNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryTransport) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrSubscribeFailed
	}
	m.subscribed = true
	return nil
}

func (m *MemoryTransport) Messages() <-chan []byte {
	return m.msgChan
}

func (m *MemoryTransport) Close() error {
	m.once.Do(func() {
		// Wake blocked publishers before waiting for their read locks.
		close(m.closedChan)

		m.mu.Lock()
		close(m.msgChan)
		m.connected = false
		m.subscribed = false
		m.mu.Unlock()
	})
	return nil
}

func (m *MemoryTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Published returns a copy of every payload accepted so far.
func (m *MemoryTransport) Published() [][]byte {
	m.publishedMu.Lock()
	defer m.publishedMu.Unlock()
	return slices.Clone(m.published)
}
