package kafka

import (
	"errors"
	"strings"
)

// ErrNoBrokers is returned when no broker list is configured.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// Config holds Kafka producer configuration
type Config struct {
	Brokers           string
	Topic             string
	ClientID          string
	EnableIdempotence bool
	Acks              string
}

// NewConfig builds a producer config publishing to topic.
func NewConfig(brokers, topic string) (*Config, error) {
	brokers = strings.TrimSpace(brokers)
	if brokers == "" {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		topic = "reading-events"
	}
	return &Config{
		Brokers:           brokers,
		Topic:             topic,
		ClientID:          "pathlet-server",
		EnableIdempotence: true,
		Acks:              "all",
	}, nil
}

// BrokerList returns brokers as a slice
func (c *Config) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// configMap renders the librdkafka settings for the producer.
func (c *Config) configMap() map[string]any {
	return map[string]any{
		"bootstrap.servers":                     strings.Join(c.BrokerList(), ","),
		"client.id":                             c.ClientID,
		"enable.idempotence":                    c.EnableIdempotence,
		"acks":                                  c.Acks,
		"max.in.flight.requests.per.connection": 5,
		"retries":                               2147483647,
	}
}
