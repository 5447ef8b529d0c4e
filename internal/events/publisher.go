// Package events publishes job lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Config holds Kafka publisher configuration. With no brokers the publisher
// runs in log-only mode.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes one JSON envelope per job lifecycle event. Safe to use
// when disabled; publishes then only hit the log.
type Publisher struct {
	writer  *kafka.Writer
	enabled bool
	log     *logrus.Entry
}

type envelope struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

func NewPublisher(cfg Config, log *logrus.Logger) *Publisher {
	l := log.WithField("component", "events")

	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		l.Info("kafka disabled, events go to the log only")
		return &Publisher{enabled: false, log: l}
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
		enabled: true,
		log:     l,
	}
}

// PublishJobEvent emits one event keyed by job id, so per-job ordering
// survives partitioning.
func (p *Publisher) PublishJobEvent(ctx context.Context, event, jobID string, payload any) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(envelope{
		Event:     event,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}

	if !p.enabled {
		p.log.WithFields(logrus.Fields{"event": event, "job_id": jobID}).Debug("event (log-only)")
		return nil
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(jobID),
		Value: body,
	})
	if err != nil {
		p.log.WithError(err).WithField("event", event).Warn("failed to publish event")
	}
	return err
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
