// Copyright 2026 The Hostcall Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hostcall

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"testing"
)

func TestPopFreeExhaustsAllPackets(t *testing.T) {
	const numPackets = 8
	b := allocBuffer(t, numPackets)
	seen := map[uint64]bool{}
	for ii := 0; ii < numPackets; ii++ {
		ptr := b.PopFree()
		index := ptrIndex(ptr, b.IndexSize)
		if seen[index] {
			t.Fatalf("PopFree() returned packet index %d twice", index)
		}
		seen[index] = true
	}
	if b.FreeStack != 0 {
		t.Errorf("free stack = %#x after popping every packet, want empty", b.FreeStack)
	}
}

func TestPushFreeBumpsTag(t *testing.T) {
	b := allocBuffer(t, 2)
	ptr := b.PopFree()
	b.PushFree(ptr)
	recycled := atomic.LoadUint64(&b.FreeStack)
	if recycled == ptr {
		t.Errorf("recycled pointer %#x compares equal to its previous incarnation", recycled)
	}
	if got, want := ptrIndex(recycled, b.IndexSize), ptrIndex(ptr, b.IndexSize); got != want {
		t.Errorf("recycled pointer names packet %d, want %d", got, want)
	}
}

func TestIncPtrTag(t *testing.T) {
	for _, test := range []struct {
		name      string
		ptr       uint64
		indexSize uint32
		want      uint64
	}{
		{name: "first bump", ptr: 2, indexSize: 1, want: 4},
		{name: "index preserved", ptr: 5, indexSize: 2, want: 9},
		{name: "wrap skips empty value", ptr: ^uint64(0) - 1, indexSize: 1, want: 2},
		{name: "wrap with nonzero index", ptr: ^uint64(0), indexSize: 1, want: 1},
	} {
		if got := incPtrTag(test.ptr, test.indexSize); got != test.want {
			t.Errorf("%s: incPtrTag(%#x, %d) = %#x, want %#x", test.name, test.ptr,
				test.indexSize, got, test.want)
		}
	}
}

func TestGrabReadyStackDetachesChain(t *testing.T) {
	b := allocBuffer(t, 4)
	first := b.PopFree()
	second := b.PopFree()
	b.PushReady(first)
	b.PushReady(second)

	chain := grabReadyStack(b)
	if b.ReadyStack != 0 {
		t.Errorf("ready stack = %#x after grab, want empty", b.ReadyStack)
	}
	if chain != second {
		t.Errorf("chain head = %#x, want the latest push %#x", chain, second)
	}
	if next := b.Header(chain).Next; next != first {
		t.Errorf("chain link = %#x, want the earlier push %#x", next, first)
	}
	if grabReadyStack(b) != 0 {
		t.Error("second grab returned a chain, want empty")
	}
}

// TestStackStress hammers the free stack from many goroutines. Each worker
// repeatedly claims a packet, stamps its payload, verifies the stamp still
// holds and recycles the packet. A lost or doubled packet shows up as a
// stamp mismatch or as PopFree spinning forever.
func TestStackStress(t *testing.T) {
	const (
		numPackets = 16
		workers    = 32
		rounds     = 1000
	)
	b := allocBuffer(t, numPackets)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		stamp := uint64(w + 1)
		g.Go(func() error {
			for ii := 0; ii < rounds; ii++ {
				ptr := b.PopFree()
				payload := b.Payload(ptr)
				payload.Slots[0][0] = stamp
				if got := payload.Slots[0][0]; got != stamp {
					b.PushFree(ptr)
					return ErrInternal
				}
				b.PushFree(ptr)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Errorf("stress worker observed a foreign stamp on an owned packet: %v", err)
	}

	seen := map[uint64]bool{}
	for ii := 0; ii < numPackets; ii++ {
		seen[ptrIndex(b.PopFree(), b.IndexSize)] = true
	}
	if len(seen) != numPackets {
		t.Errorf("recovered %d distinct packets after stress, want %d", len(seen), numPackets)
	}
}
