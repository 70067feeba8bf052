package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	valkeyMinRetryDelay = 100 * time.Millisecond
	valkeyMaxRetryDelay = 30 * time.Second
)

// ValkeyTransport carries encoded messages over a valkey pub/sub channel.
type ValkeyTransport struct {
	client       valkey.Client
	channel      string
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	isSubscribed bool
	connected    bool
	msgChan      chan []byte
	closedChan   chan struct{}
	once         sync.Once
	logger       *slog.Logger
}

// Publish publishes payload to the valkey channel
func (v *ValkeyTransport) Publish(ctx context.Context, payload []byte) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.connected {
		return ErrTransportNotConnected
	}

	cmd := v.client.B().Publish().Channel(v.channel).Message(valkey.BinaryString(payload)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe starts the background subscription. Calling it again is a no-op.
func (v *ValkeyTransport) Subscribe(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.isSubscribed {
		return nil
	}
	if !v.connected {
		return ErrTransportNotConnected
	}

	go v.subscriptionLoop()

	v.isSubscribed = true
	return nil
}

// subscriptionLoop keeps a subscription open until the transport closes,
// resubscribing with exponential backoff when valkey drops it.
func (v *ValkeyTransport) subscriptionLoop() {
	defer func() {
		v.mu.Lock()
		v.isSubscribed = false
		close(v.msgChan)
		v.mu.Unlock()
	}()

	retryDelay := valkeyMinRetryDelay
	subscriber := v.client.B().Subscribe().Channel(v.channel).Build()

	for !v.shouldStop() {
		// Blocks until the subscription ends.
		err := v.client.Receive(v.ctx, subscriber, v.handleMessage)
		if v.shouldStop() {
			return
		}

		if err != nil {
			v.logger.WarnContext(v.ctx, "valkey subscription lost", "channel", v.channel, "error", err, "retry_in", retryDelay)
			if !v.sleep(retryDelay) {
				return
			}
			retryDelay = min(retryDelay*2, valkeyMaxRetryDelay)
			continue
		}

		retryDelay = valkeyMinRetryDelay
		if !v.sleep(valkeyMinRetryDelay) {
			return
		}
	}
}

// handleMessage forwards one pub/sub message to the Messages channel
func (v *ValkeyTransport) handleMessage(msg valkey.PubSubMessage) {
	if msg.Channel != v.channel {
		return
	}

	select {
	case v.msgChan <- []byte(msg.Message):
	case <-v.closedChan:
	case <-v.ctx.Done():
	default:
		v.logger.WarnContext(v.ctx, "valkey message dropped, buffer full", "channel", v.channel)
	}
}

func (v *ValkeyTransport) Messages() <-chan []byte {
	return v.msgChan
}

// Close stops the subscription and closes the valkey client
func (v *ValkeyTransport) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.connected {
		return nil
	}

	v.once.Do(func() {
		close(v.closedChan)
		v.cancel()
		v.client.Close()
		v.connected = false
		if !v.isSubscribed {
			close(v.msgChan)
		}
	})
	return nil
}

func (v *ValkeyTransport) IsConnected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

func (v *ValkeyTransport) shouldStop() bool {
	select {
	case <-v.closedChan:
		return true
	case <-v.ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for d and reports false if the transport closed meanwhile.
func (v *ValkeyTransport) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-v.closedChan:
		return false
	}
}

// NewValkeyClient creates a valkey client for address. An explicit option
// without InitAddress gets address filled in.
func NewValkeyClient(address string, options ...valkey.ClientOption) (valkey.Client, error) {
	clientOption := valkey.ClientOption{}
	if len(options) > 0 {
		clientOption = options[0]
	}
	if len(clientOption.InitAddress) == 0 {
		clientOption.InitAddress = []string{address}
	}
	return valkey.NewClient(clientOption)
}

func NewValkeyTransport(client valkey.Client, channel string, opts ...Option) *ValkeyTransport {
	ctx, cancel := context.WithCancel(context.Background())
	options := newOptions(opts)

	return &ValkeyTransport{
		client:     client,
		channel:    channel,
		ctx:        ctx,
		cancel:     cancel,
		connected:  true,
		msgChan:    make(chan []byte, options.MsgBufferSize),
		closedChan: make(chan struct{}),
		logger:     options.Logger.With("transport", "valkey"),
	}
}
