package client

import (
	"fmt"
	"slices"
	"sync"

	"display-rpc/codec"
	"display-rpc/message"
	"display-rpc/report"
)

// PendingCall is a call whose reply has not arrived yet.
type PendingCall struct {
	dest any         // decoded reply target, may be nil
	done func(error) // completion, runs exactly once
}

// PendingCallCache correlates replies with the calls that requested them.
//
//	Call(id=3) ──Save(3)──┐
//	Call(id=4) ──Save(4)──┼──→ calls ──→ Complete(result id=4) → dest decoded, done(nil)
//	                      │
//	disconnect ───────────┴──→ ForceCompletion → done(ErrDisconnected) for 3
//
// Entries are registered before the invocation is written, so a reply can never
// overtake its own registration.
type PendingCallCache struct {
	mu     sync.Mutex
	calls  map[uint64]*PendingCall
	forced bool

	codec  codec.Codec
	report report.Report
}

func NewPendingCallCache(c codec.Codec, r report.Report) *PendingCallCache {
	if r == nil {
		r = report.NullReport{}
	}
	return &PendingCallCache{
		calls:  make(map[uint64]*PendingCall),
		codec:  c,
		report: r,
	}
}

// Save registers a call. After ForceCompletion it refuses with ErrDisconnected,
// since nothing would ever complete the entry.
func (p *PendingCallCache) Save(id uint64, dest any, done func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.forced {
		return ErrDisconnected
	}
	p.calls[id] = &PendingCall{dest: dest, done: done}
	return nil
}

// Complete finishes the call result answers. The entry is removed under the
// cache lock; decoding the payload into the call's destination, attach pulling
// the descriptors it announces and the completion all run after the lock is
// released, so a slow descriptor wait never holds up Save.
//
// A result for an unknown id is reported and ignored. The returned error is
// non-nil only when attach failed on the transport, which ends the channel.
func (p *PendingCallCache) Complete(result *message.Result, attach func(dest any) error) error {
	p.mu.Lock()
	call, ok := p.calls[result.ID]
	if ok {
		delete(p.calls, result.ID)
	}
	p.mu.Unlock()
	if !ok {
		p.report.OrphanedResult(result.ID)
		return nil
	}

	var callErr, fatal error
	switch {
	case result.Error != "":
		callErr = &ServerError{ID: result.ID, Message: result.Error}
	case call.dest == nil:
	case len(result.Response) > 0:
		if err := p.codec.Decode(result.Response, call.dest); err != nil {
			callErr = fmt.Errorf("client: decode reply %d: %w", result.ID, err)
			break
		}
		fallthrough
	default:
		if attach == nil {
			break
		}
		if fatal = attach(call.dest); fatal != nil {
			callErr = fmt.Errorf("%w: %w", ErrDisconnected, fatal)
		}
	}

	if call.done != nil {
		call.done(callErr)
	}
	return fatal
}

// Empty reports whether no call is waiting for a reply.
func (p *PendingCallCache) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls) == 0
}

// ForceCompletion fails every pending call with an error wrapping
// ErrDisconnected and cause, in ascending id order. Only the first call has
// any effect.
func (p *PendingCallCache) ForceCompletion(cause error) {
	p.mu.Lock()
	if p.forced {
		p.mu.Unlock()
		return
	}
	p.forced = true
	calls := p.calls
	p.calls = make(map[uint64]*PendingCall)
	p.mu.Unlock()

	err := ErrDisconnected
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrDisconnected, cause)
	}
	ids := make([]uint64, 0, len(calls))
	for id := range calls {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if done := calls[id].done; done != nil {
			done(err)
		}
	}
}
