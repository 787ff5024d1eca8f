package client

import (
	"context"
	"fmt"

	"display-rpc/loadbalance"
	"display-rpc/registry"
)

// Client finds display servers in a registry and opens channels to them.
type Client struct {
	registry registry.Registry // find server endpoints from registry
	balancer loadbalance.Balancer
	opts     []Option // applied to every channel
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	return &Client{
		registry: reg,
		balancer: bal,
		opts:     opts,
	}
}

// Connect discovers the endpoints of serverName, picks one and dials it.
func (c *Client) Connect(ctx context.Context, serverName string) (*Channel, error) {
	endpoints, err := c.registry.Discover(ctx, serverName)
	if err != nil {
		return nil, err
	}

	ep, err := c.balancer.Pick(endpoints)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", serverName, err)
	}

	return Dial(ctx, ep.SocketPath, c.opts...)
}
