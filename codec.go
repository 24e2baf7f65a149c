package xcomm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// JSONCodec is the default wire codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CodecFactory constructs codecs via Factory pattern.
type CodecFactory func() Codec

var (
	codecRegistryMu sync.RWMutex
	codecRegistry   = map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	}
)

// RegisterCodec registers a codec factory by name.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" {
		return errors.New("xcomm: codec name must not be empty")
	}
	if factory == nil {
		return errors.New("xcomm: codec factory must not be nil")
	}
	codecRegistryMu.Lock()
	codecRegistry[name] = factory
	codecRegistryMu.Unlock()
	return nil
}

// NewCodec constructs a codec by name or returns an error.
func NewCodec(name string) (Codec, error) {
	codecRegistryMu.RLock()
	f, ok := codecRegistry[name]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("xcomm: codec %q not registered", name)
	}
	return f(), nil
}

// DecodeEvent parses a notification payload as delivered to listeners.
// A nil codec falls back to JSON.
func DecodeEvent(c Codec, data []byte) (*Event, error) {
	if c == nil {
		c = JSONCodec{}
	}
	var e Event
	if err := c.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("xcomm: decode event: %w", err)
	}
	if e.EventID == "" || e.EventType == "" {
		return nil, fmt.Errorf("xcomm: decode event: missing eventId or eventType")
	}
	return &e, nil
}
