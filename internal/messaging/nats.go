package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"attendance-service/internal/metrics"

	"github.com/nats-io/nats.go"
)

// KeyHeader carries the partition key on NATS messages, which have no native key.
const KeyHeader = "Attendance-Key"

type NATSProducer struct {
	conn    *nats.Conn
	subject string
	metrics *metrics.MessagingMetrics
	logger  *slog.Logger
}

func NewNATSProducer(url, subject string, m *metrics.MessagingMetrics, logger *slog.Logger) (*NATSProducer, error) {
	nc, err := nats.Connect(url,
		nats.Name("attendance-service"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("NATS producer initialized", "url", url, "subject", subject)

	return &NATSProducer{
		conn:    nc,
		subject: subject,
		metrics: m,
		logger:  logger,
	}, nil
}

func (p *NATSProducer) SendMessage(ctx context.Context, key string, value interface{}) error {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = valueBytes
	if key != "" {
		msg.Header.Set(KeyHeader, key)
	}

	start := time.Now()
	err = p.conn.PublishMsg(msg)
	p.metrics.RecordPublish(ctx, "nats", p.subject, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to NATS", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to NATS", "subject", p.subject, "key", key)
	return nil
}

// Close flushes pending publishes before closing the connection.
func (p *NATSProducer) Close() error {
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
