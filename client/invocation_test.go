package client

import (
	"sync"
	"testing"

	"display-rpc/message"
)

func TestInvocationIDs(t *testing.T) {
	var b InvocationBuilder

	for want := uint64(0); want < 3; want++ {
		inv := b.Build("connect", nil)
		if inv.ID != want {
			t.Fatalf("expect id %d, got %d", want, inv.ID)
		}
		if inv.ProtocolVersion != message.ProtocolVersion || inv.MethodName != "connect" {
			t.Fatalf("unexpected invocation %+v", inv)
		}
	}
}

func TestInvocationIDsConcurrent(t *testing.T) {
	var b InvocationBuilder
	const n = 1000

	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- b.NextID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	for id := uint64(0); id < n; id++ {
		if !seen[id] {
			t.Fatalf("id %d never handed out", id)
		}
	}
}
