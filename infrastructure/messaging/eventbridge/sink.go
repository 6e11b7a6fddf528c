// Package eventbridge publishes memory lifecycle events to an AWS
// EventBridge bus. Topics map to detail types; consumers wire rules and
// targets outside this process.
package eventbridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/pkg/errors"
)

// PutEventsAPI is the slice of the EventBridge client the sink needs
type PutEventsAPI interface {
	PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Sink implements ports.EventSink on an EventBridge bus
type Sink struct {
	client       PutEventsAPI
	eventBusName string
	source       string
	logger       *zap.Logger
}

var _ ports.EventSink = (*Sink)(nil)

// NewSink creates an EventBridge-backed event sink
func NewSink(client PutEventsAPI, eventBusName, source string, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, errors.NewValidationError("eventbridge client is required")
	}
	if eventBusName == "" {
		return nil, errors.NewValidationError("event bus name is required")
	}
	if source == "" {
		source = "mnemo.backend"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		logger:       logger.With(zap.String("component", "eventbridge-sink")),
	}, nil
}

// Publish sends one event. The topic becomes the detail type and the
// payload the JSON detail.
func (s *Sink) Publish(ctx context.Context, topic string, payload map[string]interface{}) error {
	if topic == "" {
		return errors.NewValidationError("event topic is required")
	}

	detail, err := json.Marshal(payload)
	if err != nil {
		return errors.NewInternalError("marshal event payload").WithCause(err)
	}

	input := &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(s.eventBusName),
			Source:       aws.String(s.source),
			DetailType:   aws.String(topic),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(time.Now().UTC()),
		}},
	}

	result, err := s.client.PutEvents(ctx, input)
	if err != nil {
		return errors.NewExternalError("eventbridge", err)
	}
	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				s.logger.Error("event entry rejected",
					zap.String("topic", topic),
					zap.String("error_code", aws.ToString(entry.ErrorCode)),
					zap.String("error_message", aws.ToString(entry.ErrorMessage)))
			}
		}
		return errors.NewExternalError("eventbridge", nil).
			WithDetails(map[string]interface{}{"failed_entries": result.FailedEntryCount})
	}

	s.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("event_bus", s.eventBusName))
	return nil
}
