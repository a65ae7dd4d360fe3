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

//go:build linux

package doorbell

import (
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

func platformProvider() Provider {
	return futexProvider{}
}

// Futex operation codes from the Linux kernel ABI (linux/futex.h).
const (
	futexWait = 0
	futexWake = 1
)

type futexProvider struct{}

// NewSignal implements Provider.NewSignal.
func (futexProvider) NewSignal(initial uint64) (Signal, error) {
	s := &futexSignal{}
	s.value.Store(initial)
	return s, nil
}

// futexSignal is a doorbell backed by FUTEX_WAIT/FUTEX_WAKE on a sequence
// word. The 64-bit value and the 32-bit futex word are separate because the
// kernel futex interface operates on 32 bits; the sequence word is bumped
// after every value update so a waiter that re-checks the value between
// loading the sequence and calling FUTEX_WAIT can never miss a wakeup.
type futexSignal struct {
	value atomic.Uint64
	seq   atomic.Uint32
}

// WaitNotEqual implements Signal.WaitNotEqual.
func (s *futexSignal) WaitNotEqual(old uint64, timeoutTicks uint64) uint64 {
	ts := unix.NsecToTimespec(int64(timeoutTicks) * 1000)
	for {
		seq := s.seq.Load()
		if v := s.value.Load(); v != old {
			return v
		}
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(&s.seq)),
			futexWait, uintptr(seq), uintptr(unsafe.Pointer(&ts)), 0, 0)
		if v := s.value.Load(); v != old {
			return v
		}
		switch errno {
		case 0, unix.EAGAIN, unix.EINTR:
		case unix.ETIMEDOUT:
			return old
		default:
			panic(fmt.Sprintf("FUTEX_WAIT failed: %v", errno))
		}
	}
}

// StoreRelease implements Signal.StoreRelease.
func (s *futexSignal) StoreRelease(v uint64) {
	s.value.Store(v)
	s.bump()
}

// AddRelease implements Signal.AddRelease.
func (s *futexSignal) AddRelease(delta uint64) {
	s.value.Add(delta)
	s.bump()
}

func (s *futexSignal) bump() {
	s.seq.Add(1)
	_, _, errno := unix.RawSyscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(&s.seq)),
		futexWake, math.MaxInt32, 0, 0, 0)
	if errno != 0 {
		panic(fmt.Sprintf("FUTEX_WAKE failed: %v", errno))
	}
}

func (s *futexSignal) destroy() {}
