// Package registry provides the etcd-based implementation of the Registry interface.
//
// Display servers advertise their socket under a per-server prefix so clients on
// the same host (or sharing a runtime directory) can find them:
//
//	Key:   /display-rpc/{ServerName}{SocketPath}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL-based leases: if the server crashes, the lease expires
// and the entry is removed, so clients never dial a socket nobody listens on.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/display-rpc/"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease kept alive for it
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	return &EtcdRegistry{client: c, leases: make(map[string]clientv3.LeaseID)}, nil
}

func serverPrefix(serverName string) string {
	return keyPrefix + serverName + "/"
}

func endpointKey(serverName, socketPath string) string {
	return serverPrefix(serverName) + strings.TrimPrefix(socketPath, "/")
}

// Register adds an endpoint to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to renew the lease until Deregister revokes it
func (r *EtcdRegistry) Register(ctx context.Context, serverName string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	key := endpointKey(serverName, ep.SocketPath)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", key, err)
	}

	// The keepalive outlives ctx; it stops when the lease is revoked.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("registry: keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister removes an endpoint and revokes its lease.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(ctx context.Context, serverName string, socketPath string) error {
	key := endpointKey(serverName, socketPath)
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("registry: delete %s: %w", key, err)
	}

	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		if _, err := r.client.Revoke(ctx, id); err != nil {
			return fmt.Errorf("registry: revoke lease: %w", err)
		}
	}
	return nil
}

// Watch emits the full endpoint list whenever anything under the server's
// prefix changes. The channel is closed when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, serverName string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, serverPrefix(serverName), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetching is simpler than applying individual watch events.
			endpoints, err := r.Discover(ctx, serverName)
			if err != nil {
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered endpoints for a server.
func (r *EtcdRegistry) Discover(ctx context.Context, serverName string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, serverPrefix(serverName), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: discover %s: %w", serverName, err)
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // Skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
