package client

import (
	"sync"

	"display-rpc/codec"
	"display-rpc/event"
	"display-rpc/message"
)

// EventHandler receives the raw events addressed to one surface.
type EventHandler interface {
	HandleEvent(rec event.Record)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(rec event.Record)

func (f EventHandlerFunc) HandleEvent(rec event.Record) { f(rec) }

// Surfaces looks up the handler for a surface id. Events for ids it does not
// know are dropped.
type Surfaces interface {
	Lookup(id int32) (EventHandler, bool)
}

// DisplayConfigObserver is told about every display configuration the server pushes.
type DisplayConfigObserver interface {
	DisplayConfigChanged(conf *codec.DisplayConfiguration)
}

type DisplayConfigObserverFunc func(conf *codec.DisplayConfiguration)

func (f DisplayConfigObserverFunc) DisplayConfigChanged(conf *codec.DisplayConfiguration) { f(conf) }

// LifecycleObserver is told about lifecycle transitions, including the single
// LifecycleConnectionLost a channel delivers when it disconnects.
type LifecycleObserver interface {
	LifecycleChanged(state message.LifecycleState)
}

type LifecycleObserverFunc func(state message.LifecycleState)

func (f LifecycleObserverFunc) LifecycleChanged(state message.LifecycleState) { f(state) }

// SurfaceRegistry is a goroutine-safe Surfaces.
type SurfaceRegistry struct {
	mu       sync.RWMutex
	handlers map[int32]EventHandler
}

func NewSurfaceRegistry() *SurfaceRegistry {
	return &SurfaceRegistry{handlers: make(map[int32]EventHandler)}
}

// Insert routes events for id to h, replacing any previous handler.
func (r *SurfaceRegistry) Insert(id int32, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

func (r *SurfaceRegistry) Erase(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, id)
}

func (r *SurfaceRegistry) Lookup(id int32) (EventHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}
