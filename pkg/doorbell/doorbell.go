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

// Package doorbell provides the notification primitive that connects packet
// producers to a blocked consumer thread.
//
// A doorbell is a 64-bit value that producers update with release ordering
// and that a single consumer observes with acquire ordering, blocking until
// the value differs from the last one it saw. Doorbells are addressed by
// opaque 64-bit handles so that a handle can be stored in memory shared with
// the producing device; a handle value of zero is never valid.
//
// The concrete signal implementation is selected through a Provider, bound
// lazily on first use. This mirrors runtimes that resolve their notification
// library at runtime rather than link time: if no provider can be bound,
// Create fails and the caller reports the condition upward.
package doorbell

import (
	"errors"
	"fmt"
	"sync"
)

// Reserved doorbell values. The consumer is parked on Init before any
// producer has signalled, and Done tells it to shut down.
const (
	Init uint64 = ^uint64(0)
	Done uint64 = ^uint64(0) - 1
)

// A Handle names a doorbell. Handles are dense small integers starting at 1
// so they can be stored as an opaque 8-byte field in device-visible memory.
type Handle uint64

// A Signal is a single doorbell instance.
type Signal interface {
	// WaitNotEqual blocks until the doorbell value differs from old or the
	// timeout expires, and returns the observed value. The return value
	// carries acquire ordering with respect to the producer's store. On
	// timeout the returned value may still equal old; callers are expected
	// to re-wait.
	//
	// One timeout tick is one microsecond.
	WaitNotEqual(old uint64, timeoutTicks uint64) uint64

	// StoreRelease publishes v with release ordering and wakes the waiter.
	StoreRelease(v uint64)

	// AddRelease adds delta to the value with release ordering and wakes
	// the waiter. Producers use this to signal new work.
	AddRelease(delta uint64)

	// destroy releases any resources held by the signal.
	destroy()
}

// A Provider creates signals. It abstracts the underlying notification
// mechanism; see NewSignal for the required initial value.
type Provider interface {
	// NewSignal returns a signal whose value is initial.
	NewSignal(initial uint64) (Signal, error)
}

// ErrUnavailable is returned by Create when no notification provider could
// be bound.
var ErrUnavailable = errors.New("doorbell: no signal provider available")

var (
	mu       sync.Mutex
	provider Provider
	bound    bool
	next     Handle = 1
	signals         = map[Handle]Signal{}
)

// SetProvider replaces the signal provider used by subsequent Create calls.
// Passing nil restores the platform default. Existing signals are unaffected.
func SetProvider(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	provider = p
	bound = p != nil
}

func boundProvider() Provider {
	if !bound {
		provider = platformProvider()
		bound = true
	}
	return provider
}

// Create allocates a new doorbell with value Init and returns its handle.
func Create() (Handle, error) {
	mu.Lock()
	defer mu.Unlock()
	p := boundProvider()
	if p == nil {
		return 0, ErrUnavailable
	}
	s, err := p.NewSignal(Init)
	if err != nil {
		return 0, fmt.Errorf("doorbell: creating signal: %w", err)
	}
	h := next
	next++
	signals[h] = s
	return h, nil
}

// Destroy releases the doorbell named by h. It must not be called while a
// consumer is blocked on h.
func Destroy(h Handle) error {
	mu.Lock()
	s, ok := signals[h]
	if ok {
		delete(signals, h)
	}
	mu.Unlock()
	if !ok {
		return fmt.Errorf("doorbell: destroy of unknown handle %d", h)
	}
	s.destroy()
	return nil
}

func lookup(h Handle) Signal {
	mu.Lock()
	defer mu.Unlock()
	return signals[h]
}

// WaitNotEqual blocks on the doorbell named by h. See Signal.WaitNotEqual.
// Waiting on a destroyed or unknown handle returns old immediately.
func WaitNotEqual(h Handle, old uint64, timeoutTicks uint64) uint64 {
	s := lookup(h)
	if s == nil {
		return old
	}
	return s.WaitNotEqual(old, timeoutTicks)
}

// StoreRelease publishes v on the doorbell named by h.
func StoreRelease(h Handle, v uint64) {
	if s := lookup(h); s != nil {
		s.StoreRelease(v)
	}
}

// AddRelease adds delta to the doorbell named by h.
func AddRelease(h Handle, delta uint64) {
	if s := lookup(h); s != nil {
		s.AddRelease(delta)
	}
}
