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

//go:build !linux

package doorbell

import (
	"sync"
	"time"
)

func platformProvider() Provider {
	return chanProvider{}
}

type chanProvider struct{}

// NewSignal implements Provider.NewSignal.
func (chanProvider) NewSignal(initial uint64) (Signal, error) {
	return &chanSignal{value: initial, changed: make(chan struct{})}, nil
}

// chanSignal is a portable doorbell. Every update closes and replaces the
// broadcast channel, so waiters observe at least one wakeup per update.
type chanSignal struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

// WaitNotEqual implements Signal.WaitNotEqual.
func (s *chanSignal) WaitNotEqual(old uint64, timeoutTicks uint64) uint64 {
	deadline := time.NewTimer(time.Duration(timeoutTicks) * time.Microsecond)
	defer deadline.Stop()
	for {
		s.mu.Lock()
		v, ch := s.value, s.changed
		s.mu.Unlock()
		if v != old {
			return v
		}
		select {
		case <-ch:
		case <-deadline.C:
			s.mu.Lock()
			v = s.value
			s.mu.Unlock()
			return v
		}
	}
}

// StoreRelease implements Signal.StoreRelease.
func (s *chanSignal) StoreRelease(v uint64) {
	s.mu.Lock()
	s.value = v
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// AddRelease implements Signal.AddRelease.
func (s *chanSignal) AddRelease(delta uint64) {
	s.mu.Lock()
	s.value += delta
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

func (s *chanSignal) destroy() {}
