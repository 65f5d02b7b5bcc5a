package communicator

import (
	"context"
	"errors"

	"github.com/bilal/v2x-telemetry-agent/internal/config"
	"github.com/bilal/v2x-telemetry-agent/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

var ErrNoBrokers = errors.New("kafka brokers not configured")

// KafkaMirror republishes every encoded record to a Kafka topic. The writer
// runs in async mode so Publish never waits on the brokers; delivery
// failures are only logged and counted.
type KafkaMirror struct {
	writer   *kafka.Writer
	instance string
}

// NewKafkaMirror initializes the async writer.
func NewKafkaMirror(cfg config.KafkaConfig) (*KafkaMirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	instance := uuid.NewString()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireNone,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			metrics.RecordMirrorError()
			log.Warn().Err(err).Int("count", len(messages)).Str("topic", cfg.Topic).Msg("mirror publish failed")
		},
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Str("instance", instance).Msg("kafka mirror initialized")

	return &KafkaMirror{
		writer:   writer,
		instance: instance,
	}, nil
}

// Publish queues one record keyed by the receiving node so records of the
// same vehicle stay in one partition.
func (m *KafkaMirror) Publish(ctx context.Context, key, kind string, payload []byte) error {
	return m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
			{Key: "instance", Value: []byte(m.instance)},
		},
	})
}

// Instance identifies this agent run in the message headers.
func (m *KafkaMirror) Instance() string {
	return m.instance
}

// Close flushes pending messages and shuts the writer down.
func (m *KafkaMirror) Close() error {
	log.Info().Msg("closing kafka mirror")
	return m.writer.Close()
}
