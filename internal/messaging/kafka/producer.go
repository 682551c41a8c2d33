package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Producer publishes event envelopes to a single topic.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewConfig returns the producer configuration: all in-sync replicas acknowledge,
// and idempotence keeps retries from duplicating messages.
func NewConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer connects a synchronous producer to brokers.
func NewProducer(brokers []string, clientID, topic string, logger zerolog.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFrom(producer, topic, logger), nil
}

// NewProducerFrom wraps an existing sync producer.
func NewProducerFrom(producer sarama.SyncProducer, topic string, logger zerolog.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger.With().Str("component", "kafka-producer").Logger(),
	}
}

// Publish sends payload wrapped in an Envelope, keyed by aggregateID so events
// of one order land on one partition in order.
func (p *Producer) Publish(ctx context.Context, id, eventType, aggregateID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(Envelope{
		ID:          id,
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     json.RawMessage(payload),
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(aggregateID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", p.topic).
			Str("event_type", eventType).
			Str("key", aggregateID).
			Msg("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("event_type", eventType).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("message sent to kafka")

	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
