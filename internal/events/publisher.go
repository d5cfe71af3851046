// Package events publishes finalized analysis reports to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/metrics"
)

// Publisher publishes reports to separate Kafka topics: every finalized
// report goes to the report topic; reports requiring expert review
// additionally go to the alert topic for the notification dispatcher.
type Publisher struct {
	writerReport *kafka.Writer
	writerAlert  *kafka.Writer
	principal    string
	topicReport  string
	topicAlert   string
	enabled      bool
	metrics      *metrics.Metrics
}

// New creates the publisher. With Kafka disabled or no brokers configured
// it runs in log-only mode and every publish succeeds locally.
func New(cfg *config.Kafka) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:   cfg.Principal,
			topicReport: cfg.TopicReport,
			topicAlert:  cfg.TopicAlert,
			enabled:     false,
			metrics:     m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerReport := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicReport,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerAlert := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicAlert,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicReport", cfg.TopicReport).
		Str("topicAlert", cfg.TopicAlert).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerReport: writerReport,
		writerAlert:  writerAlert,
		principal:    cfg.Principal,
		topicReport:  cfg.TopicReport,
		topicAlert:   cfg.TopicAlert,
		enabled:      true,
		metrics:      m,
	}
}

// PublishReport publishes a finalized report, fanning out to the alert
// topic when the report requires expert review.
func (p *Publisher) PublishReport(ctx context.Context, report *models.AnalysisReport) error {
	if err := p.publish(ctx, p.writerReport, p.topicReport, "report", report.SessionID, report); err != nil {
		return err
	}
	if report.RequiresExpertReview {
		return p.publish(ctx, p.writerAlert, p.topicAlert, "alert", report.SessionID, report)
	}
	return nil
}

// publish writes one event to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerReport != nil {
		if e := p.writerReport.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing report writer")
			err = e
		}
	}
	if p.writerAlert != nil {
		if e := p.writerAlert.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing alert writer")
			err = e
		}
	}
	return err
}
