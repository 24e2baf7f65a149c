// Package kafkasink publishes lifecycle events to a Kafka topic for audit.
// Events are keyed by message id so one message's events land on one
// partition in order.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trickstertwo/xcomm"
)

const headerEventType = "event_type"

type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Writer is the part of *kafka.Writer the sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink is an append-only xcomm.EventStore backed by a Kafka writer.
type Sink struct {
	w Writer
}

// New creates a writer for cfg.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafkasink: brokers and topic required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Sink{w: w}, nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w Writer) *Sink { return &Sink{w: w} }

func (s *Sink) Append(ctx context.Context, e *xcomm.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(e.MessageID()),
		Value:   value,
		Time:    e.EventTime,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(e.EventType)}},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *Sink) Close() error { return s.w.Close() }
