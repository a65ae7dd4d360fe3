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
	"sync"
)

// ServiceFunctionCall is the built-in service that invokes a registered
// host function on behalf of a lane. Slot word 0 carries the function
// token, words 1..7 the arguments; the function's two output words are
// written back over slot words 0 and 1.
const ServiceFunctionCall = 1

// errUnknownFunction is the fatal status reported when a packet names a
// function token that was never registered. Negative to stay clear of the
// predefined positive status codes.
const errUnknownFunction = -1

// A Function is a host function callable through the function-call
// service. It may read up to seven input words and produce up to two
// output words.
type Function func(output *[2]uint64, input *[7]uint64)

var functions struct {
	mu    sync.Mutex
	next  uint64
	table map[uint64]Function
}

// RegisterFunction makes fn callable through the function-call service and
// returns the token a lane places in slot word 0 to name it. Tokens stand
// in for raw code addresses, which cannot round-trip through device memory
// in Go. Functions are never deregistered.
func RegisterFunction(fn Function) uint64 {
	functions.mu.Lock()
	defer functions.mu.Unlock()
	if functions.table == nil {
		functions.table = map[uint64]Function{}
		functions.next = 1
	}
	token := functions.next
	functions.next++
	functions.table[token] = fn
	return token
}

func lookupFunction(token uint64) Function {
	functions.mu.Lock()
	defer functions.mu.Unlock()
	return functions.table[token]
}

func functionCallHandler(service uint32, payload *[NumSlots]uint64) int {
	fn := lookupFunction(payload[0])
	if fn == nil {
		log.Errorf("hostcall: function-call packet names unknown function %#x", payload[0])
		return errUnknownFunction
	}
	var input [7]uint64
	copy(input[:], payload[1:])
	var output [2]uint64
	fn(&output, &input)
	payload[0], payload[1] = output[0], output[1]
	return 0
}

// RegisterFunctionCallService registers the function-call service. It is
// separate from package initialization so that runtimes that provide their
// own service table can skip it.
func RegisterFunctionCallService() error {
	return RegisterService(ServiceFunctionCall, functionCallHandler)
}
