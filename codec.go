package mediator

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type wireMessage struct {
	ID      string              `json:"id"`
	Source  string              `json:"source"`
	Type    string              `json:"type"`
	Time    time.Time           `json:"time"`
	Headers map[string]string   `json:"headers,omitempty"`
	Data    jsoniter.RawMessage `json:"data"`
}

// Codec turns messages into JSON and back. Decoding needs the concrete type
// behind each type tag, so every request type that crosses the wire must be
// registered with RegisterMessageType.
type Codec struct {
	types map[string]reflect.Type
	mu    sync.RWMutex
}

func NewCodec() *Codec {
	return &Codec{types: make(map[string]reflect.Type)}
}

// RegisterMessageType makes T decodable under its TypeName.
func RegisterMessageType[T Request](c *Codec) error {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface {
		return fmt.Errorf("%w: %s must be a concrete type", ErrInvalidRegistration, typeName(t))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[typeName(t)] = t
	return nil
}

func (c *Codec) lookup(tag string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[tag]
	return t, ok
}

func (c *Codec) Encode(msg Message[Request]) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	data, err := jsonAPI.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return jsonAPI.Marshal(wireMessage{
		ID:      msg.ID,
		Source:  msg.Source,
		Type:    msg.Type,
		Time:    msg.Time,
		Headers: msg.Headers,
		Data:    data,
	})
}

func (c *Codec) Decode(payload []byte) (Message[Request], error) {
	var wire wireMessage
	if err := jsonAPI.Unmarshal(payload, &wire); err != nil {
		return Message[Request]{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	t, ok := c.lookup(wire.Type)
	if !ok {
		return Message[Request]{}, fmt.Errorf("%w: %s", ErrUnknownMessageType, wire.Type)
	}

	var data any
	if t.Kind() == reflect.Pointer {
		v := reflect.New(t.Elem())
		if err := jsonAPI.Unmarshal(wire.Data, v.Interface()); err != nil {
			return Message[Request]{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		data = v.Interface()
	} else {
		v := reflect.New(t)
		if err := jsonAPI.Unmarshal(wire.Data, v.Interface()); err != nil {
			return Message[Request]{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		data = v.Elem().Interface()
	}

	msg := Message[Request]{
		ID:      wire.ID,
		Source:  wire.Source,
		Type:    wire.Type,
		Time:    wire.Time.UTC(),
		Headers: wire.Headers,
		Data:    data.(Request),
	}
	if err := msg.Validate(); err != nil {
		return Message[Request]{}, err
	}
	return msg, nil
}
