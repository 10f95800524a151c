// Package consul registers the Pathlet server with HashiCorp Consul and looks up
// the services it depends on.
package consul

import (
	"log/slog"

	consulapi "github.com/hashicorp/consul/api"
)

// Client wraps the Consul API client
type Client struct {
	api    *consulapi.Client
	logger *slog.Logger
}

// NewClient creates a new Consul client. token may be empty when ACLs are off.
func NewClient(addr, token string, logger *slog.Logger) (*Client, error) {
	config := consulapi.DefaultConfig()
	config.Address = addr
	if token != "" {
		config.Token = token
	}

	client, err := consulapi.NewClient(config)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{api: client, logger: logger}, nil
}

// API returns the underlying Consul API client
func (c *Client) API() *consulapi.Client {
	return c.api
}
