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

// Package alarm provides one-shot timers armed at absolute wall-clock time.
//
// Depending on the backend a timer may be able to wake the host from suspend.
// Callers query capabilities and pick the most precise Mode available.
package alarm

import (
	"time"

	"github.com/pkg/errors"
)

// Mode requested timer precision
type Mode int

const (
	// Inexact timer fires no earlier than requested, possibly late if host sleeps
	Inexact Mode = iota
	// Exact timer wakes host at requested instant
	Exact
	// ExactIdle exact timer which also fires while host is in power-saving idle
	ExactIdle
)

var modeDesc = map[Mode]string{
	Inexact:   "inexact",
	Exact:     "exact",
	ExactIdle: "exact-idle",
}

// String mode name
func (m Mode) String() string {
	if s, ok := modeDesc[m]; ok {
		return s
	}

	return "unknown"
}

// nolint: golint
var (
	ErrModeUnsupported = errors.New("alarm: mode not supported")
	ErrUnsupported     = errors.New("alarm: backend not supported on this platform")
	ErrUnknownBackend  = errors.New("alarm: unknown backend")
)

// Handle armed timer
type Handle interface {
	When() time.Time
	Mode() Mode
}

// Service timer service contract
type Service interface {
	// Arm one-shot timer firing fn at absolute time at.
	// Returns ErrModeUnsupported if platform refuses requested mode
	Arm(at time.Time, mode Mode, fn func()) (Handle, error)

	// Cancel armed timer. Returns false if timer already fired or was cancelled
	Cancel(Handle) bool

	// SupportsExactWake either Exact mode available
	SupportsExactWake() bool

	// SupportsIdleBypass either ExactIdle mode available
	SupportsIdleBypass() bool

	// Now current wall clock time as seen by the service
	Now() time.Time
}

// BestMode most precise mode offered by service
func BestMode(s Service) Mode {
	switch {
	case s.SupportsIdleBypass():
		return ExactIdle
	case s.SupportsExactWake():
		return Exact
	default:
		return Inexact
	}
}
