package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const kafkaRetryDelay = 500 * time.Millisecond

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig selects the brokers, topic and consumer group of a KafkaTransport.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaTransport carries encoded messages over a kafka topic. Trace context
// travels inside the encoded message, not in record headers.
type KafkaTransport struct {
	writer     kafkaWriter
	reader     kafkaReader
	topic      string
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	subscribed bool
	connected  bool
	msgChan    chan []byte
	closedChan chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func NewKafkaTransport(cfg KafkaConfig, opts ...Option) *KafkaTransport {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
		MaxWait: time.Second,
	})
	return newKafkaTransport(writer, reader, cfg.Topic, opts...)
}

func newKafkaTransport(writer kafkaWriter, reader kafkaReader, topic string, opts ...Option) *KafkaTransport {
	ctx, cancel := context.WithCancel(context.Background())
	options := newOptions(opts)
	return &KafkaTransport{
		writer:     writer,
		reader:     reader,
		topic:      topic,
		ctx:        ctx,
		cancel:     cancel,
		connected:  true,
		msgChan:    make(chan []byte, options.MsgBufferSize),
		closedChan: make(chan struct{}),
		logger:     options.Logger.With("transport", "kafka", "topic", topic),
	}
}

func (k *KafkaTransport) Publish(ctx context.Context, payload []byte) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.connected {
		return ErrTransportNotConnected
	}

	err := k.writer.WriteMessages(ctx, kafkago.Message{
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (k *KafkaTransport) Subscribe(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return nil
	}
	if !k.connected {
		return ErrTransportNotConnected
	}

	k.wg.Add(1)
	go k.consume()

	k.subscribed = true
	return nil
}

// consume fetches records and commits each one after it was handed to Messages.
func (k *KafkaTransport) consume() {
	defer k.wg.Done()
	defer close(k.msgChan)

	for {
		m, err := k.reader.FetchMessage(k.ctx)
		if err != nil {
			if k.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			k.logger.WarnContext(k.ctx, "kafka fetch failed", "error", err)
			select {
			case <-time.After(kafkaRetryDelay):
				continue
			case <-k.closedChan:
				return
			}
		}

		select {
		case k.msgChan <- m.Value:
		case <-k.closedChan:
			return
		}

		if err := k.reader.CommitMessages(k.ctx, m); err != nil {
			k.logger.ErrorContext(k.ctx, "kafka commit failed", "offset", m.Offset, "partition", m.Partition, "error", err)
		}
	}
}

func (k *KafkaTransport) Messages() <-chan []byte {
	return k.msgChan
}

func (k *KafkaTransport) Close() error {
	k.mu.Lock()
	if !k.connected {
		k.mu.Unlock()
		return nil
	}
	k.connected = false
	subscribed := k.subscribed
	k.mu.Unlock()

	var errs []error
	k.once.Do(func() {
		close(k.closedChan)
		k.cancel()
		k.wg.Wait()
		if !subscribed {
			close(k.msgChan)
		}
		errs = append(errs, k.writer.Close(), k.reader.Close())
	})
	return errors.Join(errs...)
}

func (k *KafkaTransport) IsConnected() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.connected
}
