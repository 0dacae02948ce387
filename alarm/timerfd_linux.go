//go:build linux

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
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// timerfd service arms kernel timers through timerfd.
//   Exact     CLOCK_REALTIME_ALARM, absolute wall time, wakes host from suspend
//   ExactIdle CLOCK_BOOTTIME_ALARM, relative to now, counts time spent suspended
//   Inexact   CLOCK_REALTIME, absolute wall time
// Alarm clocks require CAP_WAKE_ALARM
type timerfdService struct {
	log   *zap.SugaredLogger
	exact bool
	idle  bool
}

type timerfdHandle struct {
	f     *os.File
	when  time.Time
	mode  Mode
	state uint32
}

var _ Service = (*timerfdService)(nil)

func probeClock(id int) error {
	fd, err := unix.TimerfdCreate(id, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return err
	}

	return unix.Close(fd)
}

// NewTimerFD timer service using Linux timerfd.
// Alarm clocks are probed once; missing privileges downgrade service to Inexact only
func NewTimerFD(log *zap.SugaredLogger) (Service, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if err := probeClock(unix.CLOCK_REALTIME); err != nil {
		return nil, errors.Wrap(ErrUnsupported, err.Error())
	}

	s := &timerfdService{
		log: log,
	}

	if err := probeClock(unix.CLOCK_REALTIME_ALARM); err != nil {
		log.Infow("exact wake timers unavailable", "error", err)
	} else {
		s.exact = true
	}

	if err := probeClock(unix.CLOCK_BOOTTIME_ALARM); err != nil {
		log.Infow("idle bypass timers unavailable", "error", err)
	} else {
		s.idle = true
	}

	return s, nil
}

func (s *timerfdService) Arm(at time.Time, mode Mode, fn func()) (Handle, error) {
	var clockID int
	var flags int
	var spec unix.ItimerSpec

	switch mode {
	case ExactIdle:
		if !s.idle {
			return nil, ErrModeUnsupported
		}

		d := time.Until(at)
		if d <= 0 {
			d = time.Nanosecond
		}

		clockID = unix.CLOCK_BOOTTIME_ALARM
		spec.Value = unix.NsecToTimespec(d.Nanoseconds())
	case Exact:
		if !s.exact {
			return nil, ErrModeUnsupported
		}

		clockID = unix.CLOCK_REALTIME_ALARM
		flags = unix.TFD_TIMER_ABSTIME
		spec.Value = unix.NsecToTimespec(at.UnixNano())
	case Inexact:
		clockID = unix.CLOCK_REALTIME
		flags = unix.TFD_TIMER_ABSTIME
		spec.Value = unix.NsecToTimespec(at.UnixNano())
	default:
		return nil, ErrModeUnsupported
	}

	fd, err := unix.TimerfdCreate(clockID, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		if err == unix.EPERM || err == unix.EINVAL {
			return nil, errors.Wrap(ErrModeUnsupported, err.Error())
		}
		return nil, errors.Wrap(err, "timerfd create")
	}

	if err = unix.TimerfdSettime(fd, flags, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "timerfd settime")
	}

	// non-blocking descriptor gets registered with runtime poller,
	// so Close from Cancel unblocks pending Read
	h := &timerfdHandle{
		f:    os.NewFile(uintptr(fd), "timerfd"),
		when: at,
		mode: mode,
	}

	go s.wait(h, fn)

	return h, nil
}

func (s *timerfdService) wait(h *timerfdHandle, fn func()) {
	buf := make([]byte, 8)

	_, err := h.f.Read(buf)
	if err != nil {
		// cancelled
		return
	}

	if atomic.CompareAndSwapUint32(&h.state, stateArmed, stateFired) {
		_ = h.f.Close()
		fn()
	}
}

func (s *timerfdService) Cancel(h Handle) bool {
	th, ok := h.(*timerfdHandle)
	if !ok || th == nil {
		return false
	}

	if !atomic.CompareAndSwapUint32(&th.state, stateArmed, stateCancelled) {
		return false
	}

	if err := th.f.Close(); err != nil {
		s.log.Debugw("timerfd close", "error", err)
	}

	return true
}

func (s *timerfdService) SupportsExactWake() bool {
	return s.exact
}

func (s *timerfdService) SupportsIdleBypass() bool {
	return s.idle
}

func (s *timerfdService) Now() time.Time {
	return time.Now()
}

func (h *timerfdHandle) When() time.Time {
	return h.when
}

func (h *timerfdHandle) Mode() Mode {
	return h.mode
}
