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

package doorbell

import (
	"errors"
	"time"

	"testing"
)

func newTestDoorbell(tb testing.TB) Handle {
	tb.Helper()
	h, err := Create()
	if err != nil {
		tb.Fatalf("Create() failed: %v", err)
	}
	tb.Cleanup(func() {
		if err := Destroy(h); err != nil {
			tb.Errorf("Destroy() failed: %v", err)
		}
	})
	return h
}

func TestCreateAssignsDistinctHandles(t *testing.T) {
	first := newTestDoorbell(t)
	second := newTestDoorbell(t)
	if first == 0 || second == 0 {
		t.Errorf("Create() returned the invalid handle 0: %d, %d", first, second)
	}
	if first == second {
		t.Errorf("Create() returned handle %d twice", first)
	}
}

func TestDestroyUnknownHandle(t *testing.T) {
	if err := Destroy(Handle(1 << 40)); err == nil {
		t.Error("Destroy() of an unknown handle succeeded, want error")
	}
}

func TestWaitObservesStore(t *testing.T) {
	h := newTestDoorbell(t)

	got := make(chan uint64, 1)
	go func() {
		v := Init
		for v == Init {
			v = WaitNotEqual(h, Init, 1000)
		}
		got <- v
	}()

	StoreRelease(h, 7)
	select {
	case v := <-got:
		if v != 7 {
			t.Errorf("WaitNotEqual() = %d, want 7", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not observe the store within 5s")
	}
}

func TestWaitObservesAdds(t *testing.T) {
	h := newTestDoorbell(t)
	StoreRelease(h, 0)

	done := make(chan uint64, 1)
	go func() {
		v := uint64(0)
		for v != 3 {
			v = WaitNotEqual(h, v, 1000)
		}
		done <- v
	}()

	for ii := 0; ii < 3; ii++ {
		AddRelease(h, 1)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not accumulate three increments within 5s")
	}
}

func TestWaitTimeout(t *testing.T) {
	h := newTestDoorbell(t)
	start := time.Now()
	if v := WaitNotEqual(h, Init, 1000); v != Init {
		t.Errorf("WaitNotEqual() on an idle doorbell = %d, want %d", v, Init)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("1ms timeout took %v", elapsed)
	}
}

func TestWaitReturnsImmediatelyWhenChanged(t *testing.T) {
	h := newTestDoorbell(t)
	StoreRelease(h, 5)
	// A very long timeout must not matter when the value already differs.
	if v := WaitNotEqual(h, Init, 1<<40); v != 5 {
		t.Errorf("WaitNotEqual() = %d, want 5", v)
	}
}

func TestWaitOnDestroyedHandle(t *testing.T) {
	h, err := Create()
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := Destroy(h); err != nil {
		t.Fatalf("Destroy() failed: %v", err)
	}
	if v := WaitNotEqual(h, 99, 1<<40); v != 99 {
		t.Errorf("WaitNotEqual() on a destroyed handle = %d, want the old value 99", v)
	}
	// Updates on a destroyed handle are dropped.
	StoreRelease(h, 1)
	AddRelease(h, 1)
}

type failingProvider struct{}

func (failingProvider) NewSignal(initial uint64) (Signal, error) {
	return nil, errors.New("no signals here")
}

func TestSetProvider(t *testing.T) {
	SetProvider(failingProvider{})
	defer SetProvider(nil)

	if _, err := Create(); err == nil {
		t.Error("Create() with a failing provider succeeded, want error")
	}

	SetProvider(nil)
	h := newTestDoorbell(t)
	StoreRelease(h, 1)
	if v := WaitNotEqual(h, Init, 1<<40); v != 1 {
		t.Errorf("WaitNotEqual() after restoring the platform provider = %d, want 1", v)
	}
}
