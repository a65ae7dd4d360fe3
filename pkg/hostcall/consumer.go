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
	"os"
	"sync"
	"sync/atomic"

	"hostcall.dev/hostcall/pkg/doorbell"
)

// drainTimeoutTicks bounds each doorbell wait so the worker periodically
// re-checks for the Done sentinel even if a wakeup is lost.
const drainTimeoutTicks = 1 << 20

type bufferRecord struct {
	// discarded is set by DeregisterBuffer. The record is erased on the
	// next drain pass, never synchronously, so the worker can never touch
	// a buffer while its registration is being torn down.
	discarded bool
}

// A Consumer owns one worker thread and the set of buffers it drains. All
// methods are safe for concurrent use.
type Consumer struct {
	doorbell doorbell.Handle

	mu      sync.Mutex
	buffers map[*BufferHeader]*bufferRecord
	running bool
	done    chan struct{}
}

// CreateConsumer returns an inactive consumer. It fails with ErrInternal
// when the doorbell primitive is unavailable.
//
// A single consumer is sufficient to serve every buffer in the process;
// multiple consumers may be created to spread service work across threads.
func CreateConsumer() (*Consumer, error) {
	h, err := doorbell.Create()
	if err != nil {
		log.Errorf("hostcall: %v", err)
		return nil, ErrInternal
	}
	return &Consumer{
		doorbell: h,
		buffers:  map[*BufferHeader]*bufferRecord{},
	}, nil
}

// Destroy terminates the consumer if it is active and releases its
// doorbell. The consumer must not be used after Destroy returns; behavior
// is undefined if Destroy is called twice.
func (c *Consumer) Destroy() error {
	if err := c.Terminate(); err != nil {
		return err
	}
	if err := doorbell.Destroy(c.doorbell); err != nil {
		log.Errorf("hostcall: %v", err)
		return ErrInternal
	}
	return nil
}

// Launch starts the consumer's worker thread. Launching an already-active
// consumer fails with ErrConsumerActive and has no effect on the worker.
func (c *Consumer) Launch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrConsumerActive
	}
	c.running = true
	c.done = make(chan struct{})
	go c.consumePackets()
	return nil
}

// Terminate stops the worker thread and waits for it to exit. Terminating
// an inactive consumer is a no-op that returns nil.
func (c *Consumer) Terminate() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	done := c.done
	c.mu.Unlock()

	doorbell.StoreRelease(c.doorbell, doorbell.Done)
	<-done
	// Clear the Done sentinel so that a later Launch starts a worker that
	// waits for producers instead of exiting at once.
	doorbell.StoreRelease(c.doorbell, doorbell.Init)

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

// RegisterBuffer attaches an initialized buffer to this consumer and
// publishes the consumer's doorbell in the buffer header, where the device
// producer finds it. Registering the same buffer again is a no-op. A buffer
// must not be registered with more than one consumer.
func (c *Consumer) RegisterBuffer(b *BufferHeader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.buffers[b]
	if !ok {
		rec = &bufferRecord{}
		c.buffers[b] = rec
	}
	rec.discarded = false
	b.Doorbell = c.doorbell
	log.Debugf("hostcall: registered buffer %p with doorbell %d", b, b.Doorbell)
	return nil
}

// DeregisterBuffer detaches a buffer from this consumer. The buffer may be
// freed once DeregisterBuffer returns and the consumer is known not to be
// mid-drain on it; the registry record itself is reaped on the worker's
// next pass. Deregistering a buffer that is unknown or already deregistered
// fails with ErrInvalidRequest.
func (c *Consumer) DeregisterBuffer(b *BufferHeader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.buffers[b]
	if !ok || rec.discarded {
		return ErrInvalidRequest
	}
	rec.discarded = true
	return nil
}

// consumePackets is the worker loop. It parks on the doorbell, and on every
// wakeup sweeps all registered buffers, reaping discarded records and
// draining the rest.
func (c *Consumer) consumePackets() {
	log.Debugf("hostcall: launched consumer")
	signalValue := doorbell.Init

	for {
		log.Debugf("hostcall: old signal value: %d", int64(signalValue))
		signalValue = doorbell.WaitNotEqual(c.doorbell, signalValue, drainTimeoutTicks)
		log.Debugf("hostcall: new signal value: %d", int64(signalValue))
		if signalValue == doorbell.Done {
			close(c.done)
			return
		}

		registry.mu.RLock()
		c.mu.Lock()
		for b, rec := range c.buffers {
			if rec.discarded {
				delete(c.buffers, b)
				continue
			}
			if chain := grabReadyStack(b); chain != 0 {
				c.processPackets(b, chain)
			}
		}
		c.mu.Unlock()
		registry.mu.RUnlock()
	}
}

// processPackets walks a private chain of published packets. The caller
// holds the registry read lock.
//
// Each wave has at most one packet in flight, and every ready packet was
// pushed by a different wave, so consuming the chain latest-first cannot
// starve any producer.
func (c *Consumer) processPackets(b *BufferHeader, chain uint64) {
	log.Debugf("hostcall: process packets starting with %#x", chain)

	for iter, next := chain, uint64(0); iter != 0; iter = next {
		header := b.Header(iter)
		// The packet is recycled by its wave as soon as READY clears, so
		// the chain link must be read before dispatching.
		next = header.Next

		service := header.Service
		log.Debugf("hostcall: packet %#x (index %d) service %d", iter,
			ptrIndex(iter, b.IndexSize), service)

		handler := registry.lookup(service)
		if handler == nil {
			log.Errorf("hostcall fatal error: no service found for service ID %d", service)
			c.fatal(int(ErrServiceUnknown))
		}

		activemask := header.ActiveMask
		log.Debugf("hostcall: activemask: %#x", activemask)
		payload := b.Payload(iter)
		for lane := uint(0); lane != NumLanes; lane++ {
			if activemask&(uint64(1)<<lane) == 0 {
				continue
			}
			if rv := handler(service, &payload.Slots[lane]); rv != 0 {
				log.Errorf("hostcall fatal error: service %d handler returned %d", service, rv)
				c.fatal(rv)
			}
		}

		atomic.StoreUint32(&header.Control, ResetReadyFlag(header.Control))
	}
}

// fatal reports a non-recoverable dispatch error and terminates the
// process. The exit is immediate, without unwinding, because host-side
// destructors may block on locks held by the producing device.
func (c *Consumer) fatal(code int) {
	if registry.onError != nil {
		registry.onError(code)
	}
	os.Exit(1)
}
