package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/lead-intake-service/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour required by the publisher.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ReadyReporter is implemented by producers that track broker readiness.
type ReadyReporter interface {
	IsReady() bool
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// LeadPublisher emits a lead.received event for every recorded lead. Events
// are keyed by lead id so replays of one lead land on the same partition.
type LeadPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewLeadPublisher constructs a LeadPublisher instance.
func NewLeadPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *LeadPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &LeadPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

// Record writes the lead event to Kafka synchronously.
func (p *LeadPublisher) Record(_ context.Context, lead models.LeadRecord) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	event := models.LeadEvent{
		EventType: models.EventTypeLeadReceived,
		Lead:      lead,
		Timestamp: p.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal lead event: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"event-type":   []byte(event.EventType),
		"source":       []byte(lead.Source),
	}

	if err := p.producer.PublishSync(p.topic, []byte(lead.ID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish lead event: %w", err)
	}
	p.logger.Debug().
		Str("lead_id", lead.ID).
		Str("topic", p.topic).
		Msg("lead event published")
	return nil
}

// Check reports an error when the producer has lost its brokers.
func (p *LeadPublisher) Check(context.Context) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}
	if r, ok := p.producer.(ReadyReporter); ok && !r.IsReady() {
		return errors.New("kafka publisher: producer not ready")
	}
	return nil
}
