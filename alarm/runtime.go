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

package alarm

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

type runtimeService struct {
	clock clock.Clock
}

type runtimeHandle struct {
	timer *clock.Timer
	when  time.Time
	state uint32
}

const (
	stateArmed uint32 = iota
	stateFired
	stateCancelled
)

var _ Service = (*runtimeService)(nil)

// NewRuntime timer service backed by Go runtime timers.
// Does not wake the host, hence only Inexact mode is supported
func NewRuntime(clk clock.Clock) Service {
	if clk == nil {
		clk = clock.New()
	}

	return &runtimeService{
		clock: clk,
	}
}

func (s *runtimeService) Arm(at time.Time, mode Mode, fn func()) (Handle, error) {
	if mode != Inexact {
		return nil, ErrModeUnsupported
	}

	h := &runtimeHandle{
		when: at,
	}

	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}

	h.timer = s.clock.AfterFunc(d, func() {
		if atomic.CompareAndSwapUint32(&h.state, stateArmed, stateFired) {
			fn()
		}
	})

	return h, nil
}

func (s *runtimeService) Cancel(h Handle) bool {
	rh, ok := h.(*runtimeHandle)
	if !ok || rh == nil {
		return false
	}

	if !atomic.CompareAndSwapUint32(&rh.state, stateArmed, stateCancelled) {
		return false
	}

	rh.timer.Stop()

	return true
}

func (s *runtimeService) SupportsExactWake() bool {
	return false
}

func (s *runtimeService) SupportsIdleBypass() bool {
	return false
}

func (s *runtimeService) Now() time.Time {
	return s.clock.Now()
}

func (h *runtimeHandle) When() time.Time {
	return h.when
}

func (h *runtimeHandle) Mode() Mode {
	return Inexact
}
