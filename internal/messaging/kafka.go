package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"attendance-service/internal/metrics"

	"github.com/IBM/sarama"
)

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *metrics.MessagingMetrics
	logger   *slog.Logger
}

// NewKafkaConfig returns the producer settings used against real brokers.
func NewKafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "attendance-service"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

func NewKafkaProducer(brokers []string, topic string, m *metrics.MessagingMetrics, logger *slog.Logger) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, err
	}

	logger.Info("kafka producer initialized", "brokers", brokers, "topic", topic)

	return NewKafkaProducerWithClient(producer, topic, m, logger), nil
}

// NewKafkaProducerWithClient wraps an existing sync producer, e.g. sarama/mocks in tests.
func NewKafkaProducerWithClient(producer sarama.SyncProducer, topic string, m *metrics.MessagingMetrics, logger *slog.Logger) *KafkaProducer {
	return &KafkaProducer{
		producer: producer,
		topic:    topic,
		metrics:  m,
		logger:   logger,
	}
}

func (p *KafkaProducer) SendMessage(ctx context.Context, key string, value interface{}) error {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(valueBytes),
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	p.metrics.RecordPublish(ctx, "kafka", p.topic, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to kafka", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to kafka", "topic", p.topic, "partition", partition, "offset", offset, "key", key)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
