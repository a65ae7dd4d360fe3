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

// Package hostcall implements the host side of a device-to-host call
// channel. GPU kernels invoke host services by filling a packet in a shared
// buffer, publishing it on the buffer's lock-free ready stack and ringing a
// doorbell; a consumer thread drains published packets, dispatches each
// active lane to a registered service handler and releases the packet back
// to the producing wave.
//
// A typical host-side flow:
//
//   - Create and launch one or more consumers.
//   - Allocate one buffer per command queue at BufferSize/BufferAlignment,
//     initialize it with InitializeBuffer and register it with a consumer.
//   - Register service handlers (RegisterService) before the first kernel
//     that uses them is launched.
//   - Deregister buffers before freeing them; destroy the consumers before
//     process exit so their threads join.
//
// The shared buffer layout and the stack protocol are a bit-exact contract
// with the device-side producer; see the layout and stack files. The buffer
// memory itself is owned by the caller and is only ever referenced, never
// allocated or freed, by this package.
package hostcall
