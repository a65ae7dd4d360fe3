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
	"time"
	"unsafe"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"

	"testing"
)

// allocBuffer maps an anonymous region for a buffer of numPackets packets
// and initializes it. The region is mapped rather than taken from the Go
// heap because buffer addresses are stored as raw integers in the shared
// header. Every byte is pre-filled with 0xff so the tests catch any path
// that relies on zero initialization.
func allocBuffer(tb testing.TB, numPackets uint32) *BufferHeader {
	tb.Helper()
	mem := mmapBuffer(tb, BufferSize(numPackets))
	if err := InitializeBuffer(unsafe.Pointer(&mem[0]), numPackets); err != nil {
		tb.Fatalf("InitializeBuffer() failed: %v", err)
	}
	return AsBuffer(unsafe.Pointer(&mem[0]))
}

func mmapBuffer(tb testing.TB, size uintptr) []byte {
	tb.Helper()
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		tb.Fatalf("failed to mmap buffer: %v", err)
	}
	tb.Cleanup(func() {
		if err := unix.Munmap(mem); err != nil {
			tb.Fatalf("failed to munmap buffer: %v", err)
		}
	})
	for i := range mem {
		mem[i] = 0xff
	}
	return mem
}

// newTestConsumer creates, launches and registers a consumer for the given
// buffer, tearing everything down when the test ends.
func newTestConsumer(tb testing.TB, b *BufferHeader) *Consumer {
	tb.Helper()
	c, err := CreateConsumer()
	if err != nil {
		tb.Fatalf("CreateConsumer() failed: %v", err)
	}
	tb.Cleanup(func() {
		if err := c.Destroy(); err != nil {
			tb.Errorf("Consumer.Destroy() failed: %v", err)
		}
	})
	if err := c.Launch(); err != nil {
		tb.Fatalf("Consumer.Launch() failed: %v", err)
	}
	if b != nil {
		if err := c.RegisterBuffer(b); err != nil {
			tb.Fatalf("Consumer.RegisterBuffer() failed: %v", err)
		}
	}
	return c
}

// waitUntil polls pred every 50us until it holds or the deadline passes.
func waitUntil(pred func() bool, deadline time.Duration) bool {
	ok := false
	op := func() error {
		if pred() {
			ok = true
			return nil
		}
		return errNotYet
	}
	retries := uint64(deadline / (50 * time.Microsecond))
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Microsecond), retries)
	_ = backoff.Retry(op, b)
	return ok
}

var errNotYet = Errno(^uint32(0))

// waitReadyCleared blocks until the consumer releases the packet by
// clearing its READY flag.
func waitReadyCleared(hdr *PacketHeader, deadline time.Duration) bool {
	return waitUntil(func() bool {
		return ReadyFlag(atomic.LoadUint32(&hdr.Control)) == 0
	}, deadline)
}

// publish makes a packet with the given activemask visible to the consumer the way a
// device wave would: READY set, pushed on the ready stack, doorbell rung.
func publish(b *BufferHeader, ptr uint64, service uint32, activemask uint64) {
	hdr := b.Header(ptr)
	hdr.Control = SetReadyFlag(hdr.Control)
	hdr.Service = service
	hdr.ActiveMask = activemask
	b.PushReady(ptr)
	b.RingDoorbell()
}
