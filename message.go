package mediator

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Message wraps a request with the metadata needed to move it between
// processes. Dispatchers never see it, a Bus unwraps it before dispatch.
type Message[T Request] struct {
	ID      string
	Source  string
	Type    string
	Time    time.Time
	Headers map[string]string
	Data    T
}

type messageConfig struct {
	id      string
	typ     string
	time    time.Time
	headers map[string]string
}

type MessageOption func(*messageConfig)

func WithMessageID(id string) MessageOption {
	return func(c *messageConfig) {
		c.id = id
	}
}

func WithMessageType(typ string) MessageOption {
	return func(c *messageConfig) {
		c.typ = typ
	}
}

// WithMessageTime overrides the creation time. It must be in UTC.
func WithMessageTime(t time.Time) MessageOption {
	return func(c *messageConfig) {
		c.time = t
	}
}

func WithMessageHeaders(headers map[string]string) MessageOption {
	return func(c *messageConfig) {
		c.headers = maps.Clone(headers)
	}
}

// NewMessage wraps data. The ID defaults to a UUIDv7, the type to the
// TypeName of data and the time to now in UTC.
func NewMessage[T Request](source string, data T, opts ...MessageOption) (Message[T], error) {
	cfg := messageConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Message[T]{}, err
		}
		cfg.id = id.String()
	}
	if cfg.typ == "" {
		cfg.typ = TypeName(data)
	}
	if cfg.time.IsZero() {
		cfg.time = time.Now().UTC()
	}

	msg := Message[T]{
		ID:      cfg.id,
		Source:  source,
		Type:    cfg.typ,
		Time:    cfg.time,
		Headers: cfg.headers,
		Data:    data,
	}
	if err := msg.Validate(); err != nil {
		return Message[T]{}, err
	}
	return msg, nil
}

// Validate checks the invariants every message must satisfy.
func (m Message[T]) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidMessage)
	case m.Source == "":
		return fmt.Errorf("%w: empty source", ErrInvalidMessage)
	case m.Type == "":
		return fmt.Errorf("%w: empty type", ErrInvalidMessage)
	case isNilRequest(m.Data):
		return fmt.Errorf("%w: nil data", ErrInvalidMessage)
	case !m.Time.IsZero() && m.Time.Location() != time.UTC:
		return fmt.Errorf("%w: time %s is not UTC", ErrInvalidMessage, m.Time)
	}
	return nil
}

// Untyped returns the message with its data widened to Request.
func (m Message[T]) Untyped() Message[Request] {
	return Message[Request]{
		ID:      m.ID,
		Source:  m.Source,
		Type:    m.Type,
		Time:    m.Time,
		Headers: m.Headers,
		Data:    m.Data,
	}
}
