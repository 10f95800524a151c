// Package kafka publishes domain events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Producer wraps a Kafka producer publishing JSON events to one topic
type Producer struct {
	producer *kafka.Producer
	config   *Config
	logger   *slog.Logger
	done     chan struct{}
}

// NewProducer creates a new Kafka producer
func NewProducer(config *Config, logger *slog.Logger) (*Producer, error) {
	cm := kafka.ConfigMap{}
	for k, v := range config.configMap() {
		cm[k] = v
	}

	p, err := kafka.NewProducer(&cm)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	producer := &Producer{
		producer: p,
		config:   config,
		logger:   logger,
		done:     make(chan struct{}),
	}

	go producer.handleDeliveryReports()

	logger.Info("Kafka producer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"idempotence", config.EnableIdempotence)

	return producer, nil
}

// Publish serialises event and queues it under key. Delivery is reported
// asynchronously.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := message(p.config.Topic, key, event)
	if err != nil {
		return err
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	p.logger.Debug("Event queued", "topic", p.config.Topic, "key", key, "size", len(msg.Value))
	return nil
}

func message(topic, key string, event any) (*kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Value: data,
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	return msg, nil
}

func (p *Producer) handleDeliveryReports() {
	defer close(p.done)
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.logger.Error("Delivery failed",
					"topic", *ev.TopicPartition.Topic,
					"error", ev.TopicPartition.Error)
			} else {
				p.logger.Debug("Message delivered",
					"topic", *ev.TopicPartition.Topic,
					"partition", ev.TopicPartition.Partition,
					"offset", ev.TopicPartition.Offset)
			}
		case kafka.Error:
			p.logger.Warn("Kafka client error", "error", ev)
		}
	}
}

// Flush waits up to timeoutMs for queued messages and returns how many remain
func (p *Producer) Flush(timeoutMs int) int {
	remaining := p.producer.Flush(timeoutMs)
	if remaining > 0 {
		p.logger.Warn("Failed to flush all messages", "remaining", remaining)
	}
	return remaining
}

// Close flushes and closes the producer
func (p *Producer) Close() {
	p.logger.Info("Closing Kafka producer...")

	if remaining := p.Flush(10000); remaining > 0 {
		p.logger.Error("Some messages were not delivered", "count", remaining)
	}

	p.producer.Close()
	<-p.done
	p.logger.Info("Kafka producer closed")
}
