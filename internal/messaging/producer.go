package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"attendance-service/internal/config"
	"attendance-service/internal/metrics"
)

const (
	DriverNone  = "none"
	DriverNATS  = "nats"
	DriverKafka = "kafka"
)

// Producer publishes attendance events and releases its broker connection on Close.
type Producer interface {
	SendMessage(ctx context.Context, key string, value interface{}) error
	Close() error
}

// NewProducer builds the producer selected by cfg.Driver. An empty driver means none.
func NewProducer(cfg config.EventsConfig, m *metrics.MessagingMetrics, logger *slog.Logger) (Producer, error) {
	switch cfg.Driver {
	case "", DriverNone:
		logger.Info("event publishing disabled")
		return NopProducer{}, nil
	case DriverNATS:
		p, err := NewNATSProducer(cfg.NATS.URL, cfg.NATS.Subject, m, logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		return p, nil
	case DriverKafka:
		p, err := NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, m, logger)
		if err != nil {
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// NopProducer drops every message.
type NopProducer struct{}

func (NopProducer) SendMessage(context.Context, string, interface{}) error { return nil }

func (NopProducer) Close() error { return nil }
