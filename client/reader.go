package client

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"display-rpc/codec"
	"display-rpc/event"
	"display-rpc/message"
	"display-rpc/protocol"
	"display-rpc/transport"
)

// readLoop owns the receive side of the transport. A stream that ends while
// nothing is pending, or after Close, is a clean shutdown; any other read
// failure is reported.
func (c *Channel) readLoop() {
	defer close(c.readDone)
	for {
		n, err := protocol.ReadHeader(c.transport)
		if err != nil {
			if c.pending.Empty() || c.closing.Load() {
				c.disconnect(nil)
			} else {
				c.disconnect(fmt.Errorf("client: read header: %w", err))
			}
			return
		}
		body, err := protocol.ReadBody(c.transport, n)
		if err != nil {
			if c.closing.Load() {
				c.disconnect(nil)
			} else {
				c.disconnect(fmt.Errorf("client: read body: %w", err))
			}
			return
		}
		if err := c.dispatch(body); err != nil {
			c.disconnect(err)
			return
		}
	}
}

// dispatch handles one Result: events first, in batch order, then the reply.
func (c *Channel) dispatch(body []byte) error {
	result, err := message.UnmarshalResult(body)
	if err != nil {
		c.opts.report.ResultReceiptFailed(err)
		return nil
	}
	for i := range result.Events {
		c.deliver(&result.Events[i])
	}
	pull := &descriptorPull{c: c, announced: int(result.Descriptors)}
	if result.HasID {
		if err := c.pending.Complete(result, pull.attach); err != nil {
			return err
		}
	}
	return pull.drain(result.ID)
}

func (c *Channel) deliver(seq *message.EventSequence) {
	if seq.DisplayConfiguration != nil {
		var conf codec.DisplayConfiguration
		if err := c.opts.codec.Decode(seq.DisplayConfiguration, &conf); err != nil {
			c.opts.report.EventParsingFailed(fmt.Errorf("client: display configuration: %w", err))
		} else if c.opts.displayConfig != nil {
			c.opts.displayConfig.DisplayConfigChanged(&conf)
		}
	}
	if seq.Lifecycle != nil && c.opts.lifecycle != nil {
		c.opts.lifecycle.LifecycleChanged(*seq.Lifecycle)
	}
	for _, raw := range seq.Events {
		rec, err := event.Decode(raw)
		if err != nil {
			c.opts.report.EventParsingFailed(err)
			continue
		}
		if c.opts.surfaces == nil {
			continue
		}
		if h, ok := c.opts.surfaces.Lookup(rec.SurfaceID); ok {
			h.HandleEvent(rec)
		}
	}
}

// unclaimed labels descriptors that arrived for no slot of a decoded reply.
const unclaimed codec.Shape = "unclaimed"

var errOverAnnounced = errors.New("client: reply declares more descriptors than its result announces")

// descriptorPull takes the descriptors that follow one Result off the side
// channel. Slots of the decoded reply are filled first, in wire order; whatever
// the Result announced beyond that is drained and closed, so a nil destination,
// a foreign reply type, a decode failure or an orphaned reply cannot leave
// descriptor messages in the byte stream.
type descriptorPull struct {
	c         *Channel
	announced int // 0 when the server does not announce a total
	received  int
	timedOut  bool
}

// attach pulls the descriptors a decoded reply declares, slot by slot. A slot
// whose descriptors do not arrive in time keeps its count and the remaining
// slots are left alone; the reply still completes.
func (p *descriptorPull) attach(dest any) error {
	for _, carrier := range codec.Classify(dest) {
		n := int(carrier.Slot.Count)
		if n <= 0 {
			continue
		}
		if p.announced > 0 && p.received+n > p.announced {
			p.c.opts.report.DescriptorWaitFailed(carrier.Shape, errOverAnnounced)
			return nil
		}
		fds, err := p.c.transport.ReceiveFDs(n, p.c.opts.fdTimeout)
		if errors.Is(err, transport.ErrDescriptorTimeout) {
			p.timedOut = true
			p.c.opts.report.DescriptorWaitFailed(carrier.Shape, err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("client: receive %s descriptors: %w", carrier.Shape, err)
		}
		p.received += n
		carrier.Slot.Attach(fds)
		p.c.opts.report.DescriptorsReceived(carrier.Shape, fds)
	}
	return nil
}

// drain closes the announced descriptors no slot claimed. After a timeout
// nothing more is expected in time, so nothing is drained.
func (p *descriptorPull) drain(id uint64) error {
	n := p.announced - p.received
	if n <= 0 || p.timedOut {
		return nil
	}
	fds, err := p.c.transport.ReceiveFDs(n, p.c.opts.fdTimeout)
	if errors.Is(err, transport.ErrDescriptorTimeout) {
		p.c.opts.report.DescriptorWaitFailed(unclaimed, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("client: drain descriptors of reply %d: %w", id, err)
	}
	for _, fd := range fds {
		unix.Close(fd)
	}
	p.c.opts.report.DescriptorsDiscarded(id, len(fds))
	return nil
}
