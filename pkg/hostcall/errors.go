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

// Errno is a hostcall status code. The numeric values are part of the ABI
// shared with device-side runtimes and must not be reordered.
type Errno uint32

// Status codes returned by the public entry points.
const (
	Success Errno = iota
	ErrConsumerActive
	ErrConsumerInactive
	ErrConsumerLaunchFailed
	ErrInvalidRequest
	ErrServiceUnknown
	ErrIncorrectAlignment
	ErrNullPtr
	ErrInternal
)

var errnoNames = [...]string{
	Success:                 "HOSTCALL_SUCCESS",
	ErrConsumerActive:       "HOSTCALL_ERROR_CONSUMER_ACTIVE",
	ErrConsumerInactive:     "HOSTCALL_ERROR_CONSUMER_INACTIVE",
	ErrConsumerLaunchFailed: "HOSTCALL_ERROR_CONSUMER_LAUNCH_FAILED",
	ErrInvalidRequest:       "HOSTCALL_ERROR_INVALID_REQUEST",
	ErrServiceUnknown:       "HOSTCALL_ERROR_SERVICE_UNKNOWN",
	ErrIncorrectAlignment:   "HOSTCALL_ERROR_INCORRECT_ALIGNMENT",
	ErrNullPtr:              "HOSTCALL_ERROR_NULLPTR",
	ErrInternal:             "HOSTCALL_INTERNAL_ERROR",
}

// Error implements error.Error.
func (e Errno) Error() string {
	return ErrorString(int(e))
}

// ErrorString returns the symbolic name for a status code, including codes
// not defined by this version of the library.
func ErrorString(error int) string {
	if error < 0 || error >= len(errnoNames) {
		return "HOSTCALL_ERROR_UNKNOWN"
	}
	return errnoNames[error]
}

// errOrNil converts an Errno to the error returned from public entry
// points: Success maps to nil.
func errOrNil(e Errno) error {
	if e == Success {
		return nil
	}
	return e
}
