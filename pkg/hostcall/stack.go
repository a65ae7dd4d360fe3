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
	"runtime"
	"sync/atomic"

	"hostcall.dev/hostcall/pkg/doorbell"
)

// This file replicates the device-side stack protocol for host-resident
// producers: tests, the stress harness and language runtimes that submit
// work from the host. The consumer itself uses only grabReadyStack and the
// READY-flag release in consumer.go.
//
// A packet pointer encodes the packet index in its low IndexSize bits and a
// monotonically increasing tag in the remaining bits. The tag is bumped on
// every free-stack push so that a pointer popped, recycled and pushed again
// never compares equal to a stale copy held by a racing pop.

// PopFree claims a packet from the buffer's free stack, spinning until one
// is available. The returned pointer is owned exclusively by the caller
// until it is pushed on the ready stack.
func (b *BufferHeader) PopFree() uint64 {
	top := &b.FreeStack
	ptr := atomic.LoadUint64(top)
	for {
		if ptr == 0 {
			// Empty stack: wait for a packet to be pushed back.
			runtime.Gosched()
			ptr = atomic.LoadUint64(top)
			continue
		}
		next := b.Header(ptr).Next
		if atomic.CompareAndSwapUint64(top, ptr, next) {
			return ptr
		}
		ptr = atomic.LoadUint64(top)
		runtime.Gosched()
	}
}

// PushReady publishes a fully written packet on the buffer's ready stack.
// The CAS carries release ordering, which hands the packet contents off to
// the consumer's acquire exchange.
func (b *BufferHeader) PushReady(ptr uint64) {
	b.pushStack(&b.ReadyStack, ptr)
}

// PushFree returns a reclaimed packet to the free stack with a freshly
// incremented pointer tag.
func (b *BufferHeader) PushFree(ptr uint64) {
	b.pushStack(&b.FreeStack, incPtrTag(ptr, b.IndexSize))
}

func (b *BufferHeader) pushStack(top *uint64, ptr uint64) {
	old := atomic.LoadUint64(top)
	for {
		b.Header(ptr).Next = old
		if atomic.CompareAndSwapUint64(top, old, ptr) {
			return
		}
		old = atomic.LoadUint64(top)
		runtime.Gosched()
	}
}

// incPtrTag bumps the tag bits of a packet pointer. A pointer that wraps to
// exactly zero would look like an empty stack, so the wrap skips to the
// next tag value for index zero.
func incPtrTag(ptr uint64, indexSize uint32) uint64 {
	inc := uint64(1) << indexSize
	ptr += inc
	if ptr == 0 {
		return inc
	}
	return ptr
}

// grabReadyStack detaches the entire published chain from the buffer. The
// acquire exchange pairs with the producers' release CAS in PushReady; the
// returned chain is private to the caller.
func grabReadyStack(b *BufferHeader) uint64 {
	return atomic.SwapUint64(&b.ReadyStack, 0)
}

// RingDoorbell signals the consumer that owns this buffer that new packets
// have been published.
func (b *BufferHeader) RingDoorbell() {
	doorbell.AddRelease(b.Doorbell, 1)
}
