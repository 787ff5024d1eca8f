package message

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// LifecycleState is an application lifecycle transition announced by the server.
type LifecycleState uint32

const (
	LifecycleWillSuspend    LifecycleState = 0
	LifecycleResumed        LifecycleState = 1
	LifecycleConnectionLost LifecycleState = 2
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleWillSuspend:
		return "will_suspend"
	case LifecycleResumed:
		return "resumed"
	case LifecycleConnectionLost:
		return "connection_lost"
	}
	return fmt.Sprintf("lifecycle(%d)", uint32(s))
}

// EventSequence is a batch of server-pushed notifications embedded in a Result.
// Raw events are fixed-size records (see package event); they are kept as bytes
// here so a malformed record only costs that one event.
type EventSequence struct {
	Events               [][]byte
	DisplayConfiguration []byte // Codec-encoded display configuration, nil if absent
	Lifecycle            *LifecycleState
}

const (
	sequenceEvent         protowire.Number = 1
	sequenceDisplayConfig protowire.Number = 2
	sequenceLifecycle     protowire.Number = 3
)

// Marshal encodes the sequence.
func (s *EventSequence) Marshal() []byte {
	var b []byte
	for _, raw := range s.Events {
		b = protowire.AppendTag(b, sequenceEvent, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}
	if s.DisplayConfiguration != nil {
		b = protowire.AppendTag(b, sequenceDisplayConfig, protowire.BytesType)
		b = protowire.AppendBytes(b, s.DisplayConfiguration)
	}
	if s.Lifecycle != nil {
		b = protowire.AppendTag(b, sequenceLifecycle, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*s.Lifecycle))
	}
	return b
}

// UnmarshalEventSequence decodes one event batch.
func UnmarshalEventSequence(data []byte) (*EventSequence, error) {
	s := &EventSequence{}
	err := walk(data, func(f field) error {
		switch f.num {
		case sequenceEvent:
			b, err := f.bytesValue()
			s.Events = append(s.Events, b)
			return err
		case sequenceDisplayConfig:
			b, err := f.bytesValue()
			s.DisplayConfiguration = b
			return err
		case sequenceLifecycle:
			var v uint64
			if err := f.varint(&v); err != nil {
				return err
			}
			state := LifecycleState(v)
			s.Lifecycle = &state
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("event sequence: %w", err)
	}
	return s, nil
}

// Lifecycle returns a pointer to state, for building sequences.
func Lifecycle(state LifecycleState) *LifecycleState {
	return &state
}
