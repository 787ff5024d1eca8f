package registry

import "context"

// Endpoint is one display server reachable on a local socket.
type Endpoint struct {
	Name       string `json:"name"`
	SocketPath string `json:"socket_path"`
	Weight     int    `json:"weight"` // Weight for load balancing
	Version    string `json:"version"`
}

// Registry advertises display-server endpoints and finds them again.
type Registry interface {
	Register(ctx context.Context, serverName string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, serverName string, socketPath string) error
	Discover(ctx context.Context, serverName string) ([]Endpoint, error)
	Watch(ctx context.Context, serverName string) <-chan []Endpoint
}
