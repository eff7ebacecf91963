// Package kafka publishes reports to a Kafka topic for downstream consumers
// such as push gateways or archives.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"

	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/platform/correlation"
)

const correlationHeader = "correlation_id"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReportMessage is the JSON value written for each report.
type ReportMessage struct {
	SubscriberID string    `json:"subscriber_id"`
	Region       string    `json:"region"`
	Text         string    `json:"text"`
	PublishedAt  time.Time `json:"published_at"`
}

// ReportPublisher implements domain.Deliverer. Messages are keyed by
// subscriber so one subscriber's reports stay ordered within a partition.
type ReportPublisher struct {
	writer messageWriter
	clock  clockwork.Clock
	Topic  string
}

var _ domain.Deliverer = (*ReportPublisher)(nil)

func NewReportPublisher(brokers []string, topic string, clock clockwork.Clock) *ReportPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &ReportPublisher{writer: writer, clock: clock, Topic: topic}
}

func (p *ReportPublisher) Deliver(ctx context.Context, r domain.Report) error {
	value, err := json.Marshal(ReportMessage{
		SubscriberID: string(r.SubscriberID),
		Region:       r.Region,
		Text:         r.Text,
		PublishedAt:  p.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(r.SubscriberID),
		Value: value,
	}
	if id, ok := correlation.ID(ctx); ok {
		msg.Headers = append(msg.Headers, kafka.Header{Key: correlationHeader, Value: []byte(id)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *ReportPublisher) Close() error {
	return p.writer.Close()
}
