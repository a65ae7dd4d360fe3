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
	"unsafe"
)

const (
	bufferHeaderSize  = unsafe.Sizeof(BufferHeader{})
	packetHeaderSize  = unsafe.Sizeof(PacketHeader{})
	packetPayloadSize = unsafe.Sizeof(PacketPayload{})
	headerAlign       = unsafe.Alignof(PacketHeader{})
	payloadAlign      = unsafe.Alignof(PacketPayload{})
)

// AsBuffer reinterprets caller-provided buffer memory as a BufferHeader.
// The memory must be at least BufferSize bytes long and aligned to
// BufferAlignment.
func AsBuffer(buffer unsafe.Pointer) *BufferHeader {
	return (*BufferHeader)(buffer)
}

// Header returns the header of the packet named by ptr.
func (b *BufferHeader) Header(ptr uint64) *PacketHeader {
	index := ptrIndex(ptr, b.IndexSize)
	return (*PacketHeader)(unsafe.Pointer(uintptr(b.Headers) + uintptr(index)*packetHeaderSize))
}

// Payload returns the payload of the packet named by ptr.
func (b *BufferHeader) Payload(ptr uint64) *PacketPayload {
	index := ptrIndex(ptr, b.IndexSize)
	return (*PacketPayload)(unsafe.Pointer(uintptr(b.Payloads) + uintptr(index)*packetPayloadSize))
}

// InitializeBuffer lays out the packet arrays and stacks inside a
// caller-provided buffer of BufferSize(numPackets) bytes. On success the
// free stack holds all numPackets packets and the ready stack is empty.
func InitializeBuffer(buffer unsafe.Pointer, numPackets uint32) error {
	if buffer == nil {
		return ErrNullPtr
	}
	if uintptr(buffer)%uintptr(BufferAlignment()) != 0 {
		return ErrIncorrectAlignment
	}

	hb := AsBuffer(buffer)
	hb.Headers = uint64(uintptr(buffer) + headerStart())
	hb.Payloads = uint64(uintptr(buffer) + payloadStart(numPackets))
	hb.IndexSize = packetIndexSize(numPackets)

	// Chain the packets onto the free stack, deepest first. The terminator
	// under the deepest entry is a tagged zero index rather than a plain
	// zero so that popping the last packet leaves a non-empty-looking chain
	// end distinct from the empty-stack value.
	hb.Header(0).Next = 0
	next := uint64(1) << hb.IndexSize
	for ii := uint64(1); ii != uint64(numPackets); ii++ {
		hb.Header(ii).Next = next
		next = ii
	}
	hb.FreeStack = next
	hb.ReadyStack = 0

	return nil
}
