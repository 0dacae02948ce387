// Copyright (c) 2014 The VolantMQ Authors. All rights reserved.
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

// Package wakelock holds the host awake while keepalive activity is in flight.
//
// A Guard hands out one Lease per acquisition. Every lease owns its own platform
// resource, so overlapping timer fires never share held/not-held accounting.
package wakelock

import (
	"time"
)

// Errors wake lock errors
type Errors int

const (
	// ErrEmptyClientID wake tag cannot be derived from empty client identifier
	ErrEmptyClientID Errors = iota
	// ErrNilProvider provider is not set
	ErrNilProvider
	// ErrUnsupported backend not supported on this platform
	ErrUnsupported
	// ErrUnknownBackend backend name not known
	ErrUnknownBackend
)

var errorsDesc = map[Errors]string{
	ErrEmptyClientID:  "wakelock: empty client id",
	ErrNilProvider:    "wakelock: nil provider",
	ErrUnsupported:    "wakelock: backend unsupported on this platform",
	ErrUnknownBackend: "wakelock: unknown backend",
}

// Error description
func (e Errors) Error() string {
	if s, ok := errorsDesc[e]; ok {
		return s
	}

	return "wakelock: unknown error"
}

// TagPrefix prepended to client identifier to form wake tag
const TagPrefix = "alarmping:"

// Resource platform handle preventing host from entering sleep while acquired
type Resource interface {
	Acquire() error
	Release() error
}

// Provider power-resource service
type Provider interface {
	NewResource(tag string) (Resource, error)
	Close() error
}

// Observer receives lease lifecycle events
type Observer interface {
	OnAcquired(tag, leaseID string, at time.Time)
	OnReleased(tag, leaseID string, at time.Time, held time.Duration)
	OnDegraded(tag, leaseID string, at time.Time, err error)
}
