// Package local provides an in-process event sink for development and
// single-node deployments. Events go to the structured log and, optionally,
// to registered subscribers.
package local

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/pkg/errors"
)

// Handler consumes a published event
type Handler func(ctx context.Context, topic string, payload map[string]interface{})

// Sink logs events and fans them out to in-process subscribers
type Sink struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

var _ ports.EventSink = (*Sink)(nil)

// NewSink creates a logging event sink
func NewSink(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		logger:   logger.With(zap.String("component", "local-sink")),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a topic
func (s *Sink) Subscribe(topic string, handler Handler) {
	if topic == "" || handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = append(s.handlers[topic], handler)
}

// Publish logs the event and invokes subscribers synchronously. A panicking
// subscriber never takes the publisher down.
func (s *Sink) Publish(ctx context.Context, topic string, payload map[string]interface{}) error {
	if topic == "" {
		return errors.NewValidationError("event topic is required")
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("publish " + topic)
	}

	s.logger.Info("event published",
		zap.String("topic", topic),
		zap.Any("payload", payload))

	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers[topic]))
	copy(handlers, s.handlers[topic])
	s.mu.RUnlock()

	for _, handler := range handlers {
		s.invoke(ctx, topic, payload, handler)
	}
	return nil
}

func (s *Sink) invoke(ctx context.Context, topic string, payload map[string]interface{}, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked",
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()
	handler(ctx, topic, payload)
}
