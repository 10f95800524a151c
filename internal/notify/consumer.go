package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Consumer feeds reading events from Kafka into a Processor, committing each
// offset once the event is final.
type Consumer struct {
	consumer  *kafka.Consumer
	processor *Processor
	topic     string
	logger    *slog.Logger
}

// NewConsumer creates a consumer of topic in group
func NewConsumer(brokers, topic, group string, processor *Processor, logger *slog.Logger) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           group,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized", "brokers", brokers, "topic", topic, "group", group)
	return &Consumer{consumer: c, processor: processor, topic: topic, logger: logger}, nil
}

// Run consumes until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.consumer.Subscribe(c.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}
	c.logger.Info("Starting to consume reading events", "topic", c.topic)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer shutting down")
			return nil
		default:
		}

		msg, err := c.consumer.ReadMessage(time.Second)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			c.logger.Error("Error reading message", "error", err)
			continue
		}

		outcome, err := c.processor.Handle(ctx, msg.Value)
		if err != nil {
			c.logger.Warn("Event not handled, will consume again",
				"partition", msg.TopicPartition.Partition,
				"offset", msg.TopicPartition.Offset,
				"error", err)
			if serr := c.consumer.Seek(msg.TopicPartition, 0); serr != nil {
				c.logger.Error("Failed to rewind partition", "error", serr)
			}
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		if _, err := c.consumer.CommitMessage(msg); err != nil {
			c.logger.Error("Failed to commit offset",
				"partition", msg.TopicPartition.Partition,
				"offset", msg.TopicPartition.Offset,
				"error", err)
		}
		c.logger.Debug("Reading event handled", "outcome", outcome, "offset", msg.TopicPartition.Offset)
	}
}

// Close closes the consumer
func (c *Consumer) Close() {
	if err := c.consumer.Close(); err != nil {
		c.logger.Error("Failed to close consumer", "error", err)
	}
	c.logger.Info("Kafka consumer closed")
}
