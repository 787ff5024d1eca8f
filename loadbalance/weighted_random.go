package loadbalance

import (
	"math/rand/v2"

	"display-rpc/registry"
)

// WeightedRandomBalancer picks endpoints with probability proportional to their
// weight. A weight of zero or less counts as one.
type WeightedRandomBalancer struct{}

func weightOf(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}

func (b *WeightedRandomBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	total := 0
	for _, ep := range endpoints {
		total += weightOf(ep)
	}

	// Walk the cumulative weights until r falls inside one.
	r := rand.IntN(total)
	for i := range endpoints {
		r -= weightOf(endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
