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

// A ServiceHandler processes one lane's payload slot. The slot carries the
// request on entry; the handler overwrites it with the response. A zero
// return reports success. Any non-zero return is fatal: the consumer
// forwards it to the error handler and terminates the process. Predefined
// status codes are positive, so handlers should use negative values for
// their own failures.
type ServiceHandler func(service uint32, payload *[NumSlots]uint64) int

// An ErrorHandler is invoked on the consumer thread immediately before the
// process terminates due to a fatal dispatch error.
type ErrorHandler func(code int)

// DefaultService is the reserved service ID whose handler is invoked for
// packets naming a service with no registered handler.
const DefaultService = 0

// serviceRegistry maps service IDs to handlers and holds the single
// process-wide error handler. Consumers dispatch under the read lock;
// registration takes the write lock, so registering while consumers are
// active is legal.
type serviceRegistry struct {
	mu       sync.RWMutex
	handlers map[uint32]ServiceHandler
	onError  ErrorHandler
}

// registry is the process-wide service registry. Entries are never removed
// for the lifetime of the process.
var registry serviceRegistry

func (r *serviceRegistry) registerService(service uint32, handler ServiceHandler) Errno {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[service]; dup {
		return ErrInvalidRequest
	}
	if r.handlers == nil {
		r.handlers = map[uint32]ServiceHandler{}
	}
	r.handlers[service] = handler
	return Success
}

func (r *serviceRegistry) registerErrorHandler(handler ErrorHandler) Errno {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onError != nil {
		return ErrInvalidRequest
	}
	r.onError = handler
	return Success
}

// lookup returns the handler for service, falling back to the default
// handler. The caller must hold r.mu for reading.
func (r *serviceRegistry) lookup(service uint32) ServiceHandler {
	if h, ok := r.handlers[service]; ok {
		return h
	}
	return r.handlers[DefaultService]
}

// RegisterService binds a handler to a service ID for the lifetime of the
// process. Service ID 0 registers the default handler, which receives
// packets whose service has no handler of its own. Registering an
// already-registered service fails with ErrInvalidRequest.
func RegisterService(service uint32, handler ServiceHandler) error {
	return errOrNil(registry.registerService(service, handler))
}

// OnError registers the handler invoked on non-recoverable errors. Only one
// error handler may be registered per process; a second registration fails
// with ErrInvalidRequest.
func OnError(handler ErrorHandler) error {
	return errOrNil(registry.registerErrorHandler(handler))
}
