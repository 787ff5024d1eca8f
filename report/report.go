// Package report receives notifications about everything a channel does that a
// caller cannot observe through a call's completion: orphaned replies, malformed
// events, descriptor waits that ran out, descriptors nobody claimed and the
// transport failure that ended a channel. A channel never stops because of a
// report.
package report

import (
	"display-rpc/codec"
	"display-rpc/message"
)

// Report is implemented by anything that wants to watch a channel.
// Methods are called from the channel's goroutines and must not block.
type Report interface {
	InvocationSucceeded(inv *message.Invocation)
	InvocationFailed(inv *message.Invocation, err error)
	ResultReceiptFailed(err error)
	OrphanedResult(id uint64)
	EventParsingFailed(err error)
	DescriptorsReceived(shape codec.Shape, fds []int)
	DescriptorWaitFailed(shape codec.Shape, err error)
	DescriptorsDiscarded(id uint64, n int)
	ConnectionFailure(err error)
}

// NullReport discards everything.
type NullReport struct{}

func (NullReport) InvocationSucceeded(*message.Invocation)     {}
func (NullReport) InvocationFailed(*message.Invocation, error) {}
func (NullReport) ResultReceiptFailed(error)                   {}
func (NullReport) OrphanedResult(uint64)                       {}
func (NullReport) EventParsingFailed(error)                    {}
func (NullReport) DescriptorsReceived(codec.Shape, []int)      {}
func (NullReport) DescriptorWaitFailed(codec.Shape, error)     {}
func (NullReport) DescriptorsDiscarded(uint64, int)            {}
func (NullReport) ConnectionFailure(error)                     {}

type multi []Report

// Multi fans every notification out to all reports in order.
func Multi(reports ...Report) Report {
	return multi(reports)
}

func (m multi) InvocationSucceeded(inv *message.Invocation) {
	for _, r := range m {
		r.InvocationSucceeded(inv)
	}
}

func (m multi) InvocationFailed(inv *message.Invocation, err error) {
	for _, r := range m {
		r.InvocationFailed(inv, err)
	}
}

func (m multi) ResultReceiptFailed(err error) {
	for _, r := range m {
		r.ResultReceiptFailed(err)
	}
}

func (m multi) OrphanedResult(id uint64) {
	for _, r := range m {
		r.OrphanedResult(id)
	}
}

func (m multi) EventParsingFailed(err error) {
	for _, r := range m {
		r.EventParsingFailed(err)
	}
}

func (m multi) DescriptorsReceived(shape codec.Shape, fds []int) {
	for _, r := range m {
		r.DescriptorsReceived(shape, fds)
	}
}

func (m multi) DescriptorWaitFailed(shape codec.Shape, err error) {
	for _, r := range m {
		r.DescriptorWaitFailed(shape, err)
	}
}

func (m multi) DescriptorsDiscarded(id uint64, n int) {
	for _, r := range m {
		r.DescriptorsDiscarded(id, n)
	}
}

func (m multi) ConnectionFailure(err error) {
	for _, r := range m {
		r.ConnectionFailure(err)
	}
}
