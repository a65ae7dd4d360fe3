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
	"math/bits"

	"hostcall.dev/hostcall/pkg/doorbell"
)

// Geometry of a packet, shared with the device-side runtime.
const (
	// NumLanes is the number of workitems in a wave. Each lane owns one
	// payload slot in a packet.
	NumLanes = 64

	// NumSlots is the number of 64-bit words in one lane's payload slot.
	// The same words carry the request on the way in and the response on
	// the way out.
	NumSlots = 8
)

// A PacketHeader describes one packet. The field order and widths are a
// bit-exact contract with the device-side header.
type PacketHeader struct {
	// Next links the packet into whichever stack it currently belongs to.
	// A value of zero terminates the chain.
	Next uint64

	// ActiveMask has one bit per lane; only lanes with their bit set carry
	// a request in the payload.
	ActiveMask uint64

	// Service selects the handler that processes this packet.
	Service uint32

	// Control is a bitfield; see control.go. Only the READY flag is
	// touched by the host.
	Control uint32
}

// A PacketPayload carries the per-lane arguments and results.
type PacketPayload struct {
	Slots [NumLanes][NumSlots]uint64
}

// A BufferHeader sits at the start of a shared hostcall buffer. Producers on
// the device and the host consumer communicate exclusively through this
// structure; its layout is a bit-exact contract with the device-side
// runtime.
//
// Headers and Payloads hold raw addresses of the packed arrays that follow
// the header inside the same buffer. They are stored as integers rather
// than Go pointers because the buffer is caller-provided raw memory (for
// example a device-coherent mapping), not a Go object.
type BufferHeader struct {
	// Doorbell names the signal the consumer of this buffer blocks on.
	// Written when the buffer is registered with a consumer.
	Doorbell doorbell.Handle

	// Headers is the address of the PacketHeader array.
	Headers uint64

	// Payloads is the address of the PacketPayload array.
	Payloads uint64

	// IndexSize is the number of low bits of a packet pointer that encode
	// the packet index; the remaining bits are the ABA tag.
	IndexSize uint32

	_ uint32

	// FreeStack is the top of the stack of available packets.
	FreeStack uint64

	// ReadyStack is the top of the stack of published packets.
	ReadyStack uint64
}

// BufferAlignment returns the alignment required for the start of a
// hostcall buffer.
func BufferAlignment() uint32 {
	return uint32(payloadAlign)
}

// BufferSize returns the buffer size needed to hold numPackets packets,
// including internal padding for the header and payload arrays.
func BufferSize(numPackets uint32) uintptr {
	return payloadStart(numPackets) + uintptr(numPackets)*packetPayloadSize
}

func headerStart() uintptr {
	return alignTo(bufferHeaderSize, headerAlign)
}

func payloadStart(numPackets uint32) uintptr {
	headerEnd := headerStart() + packetHeaderSize*uintptr(numPackets)
	return alignTo(headerEnd, payloadAlign)
}

func alignTo(value, alignment uintptr) uintptr {
	if value%alignment == 0 {
		return value
	}
	return value - (value % alignment) + alignment
}

// packetIndexSize returns the pointer index width for a buffer of
// numPackets packets. The width never drops below one bit so that a tagged
// zero index is always distinguishable from the empty-stack value.
func packetIndexSize(numPackets uint32) uint32 {
	if numPackets > 2 {
		return uint32(32 - bits.LeadingZeros32(numPackets))
	}
	return 1
}

// ptrIndex extracts the packet index from a packet pointer.
func ptrIndex(ptr uint64, indexSize uint32) uint64 {
	return ptr & ((uint64(1) << indexSize) - 1)
}
