// Package loadbalance picks one display-server endpoint out of the ones a
// registry returned.
//
// Three strategies are implemented:
//   - RoundRobin:      equal servers, spread connections evenly
//   - WeightedRandom:  servers of different capacity
//   - ConsistentHash:  keep an application on the same server across reconnects
package loadbalance

import (
	"errors"

	"display-rpc/registry"
)

// ErrNoEndpoints is returned when there is nothing to pick from.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each connect to select a target endpoint.
type Balancer interface {
	// Pick selects one endpoint from the available list.
	// Must be goroutine-safe.
	Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
