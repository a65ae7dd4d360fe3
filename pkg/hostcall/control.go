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

// Bit layout of PacketHeader.Control, shared with the device-side header.
// The host manipulates only the READY flag; all other bits are opaque and
// must be preserved.
const (
	ControlOffsetReadyFlag = 0
	ControlWidthReadyFlag  = 1
)

// setControlField inserts value into the control bitfield at
// [offset, offset+width).
func setControlField(control uint32, offset, width uint8, value uint32) uint32 {
	mask := ^(((uint32(1) << width) - 1) << offset)
	control &= mask
	return control | (value << offset)
}

// SetReadyFlag returns control with the READY flag set. Producers publish a
// packet by setting READY before pushing it on the ready stack.
func SetReadyFlag(control uint32) uint32 {
	return setControlField(control, ControlOffsetReadyFlag, ControlWidthReadyFlag, 1)
}

// ResetReadyFlag returns control with the READY flag cleared.
func ResetReadyFlag(control uint32) uint32 {
	return setControlField(control, ControlOffsetReadyFlag, ControlWidthReadyFlag, 0)
}

// ReadyFlag extracts the READY flag from control.
func ReadyFlag(control uint32) uint32 {
	return (control >> ControlOffsetReadyFlag) & ((1 << ControlWidthReadyFlag) - 1)
}
