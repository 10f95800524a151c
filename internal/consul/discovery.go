package consul

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
)

// ErrNoInstances is returned when a service has no healthy instance.
var ErrNoInstances = errors.New("no healthy instances")

// ServiceInstance represents a discovered service instance
type ServiceInstance struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
}

// URL renders the instance as an http base URL.
func (s *ServiceInstance) URL() string {
	return "http://" + net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// Discover retrieves all healthy instances of a service
func (c *Client) Discover(serviceName string) ([]*ServiceInstance, error) {
	services, _, err := c.api.Health().Service(serviceName, "", true, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover service %s: %w", serviceName, err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInstances, serviceName)
	}

	instances := make([]*ServiceInstance, 0, len(services))
	for _, entry := range services {
		instance := &ServiceInstance{
			ID:      entry.Service.ID,
			Name:    entry.Service.Service,
			Address: entry.Service.Address,
			Port:    entry.Service.Port,
			Tags:    entry.Service.Tags,
		}

		// Use node address if service address is empty
		if instance.Address == "" {
			instance.Address = entry.Node.Address
		}

		instances = append(instances, instance)
	}

	return instances, nil
}

// DiscoverOne picks one healthy instance at random
func (c *Client) DiscoverOne(serviceName string) (*ServiceInstance, error) {
	instances, err := c.Discover(serviceName)
	if err != nil {
		return nil, err
	}
	return instances[rand.IntN(len(instances))], nil
}

// ResolveURL returns the base URL of a healthy serviceName instance, or fallback
// when none can be found.
func (c *Client) ResolveURL(serviceName, fallback string) string {
	instance, err := c.DiscoverOne(serviceName)
	if err != nil {
		c.logger.Warn("Service lookup failed, using fallback",
			"service", serviceName, "fallback", fallback, "error", err)
		return fallback
	}
	c.logger.Info("Resolved service", "service", serviceName, "instance", instance.ID, "url", instance.URL())
	return instance.URL()
}
