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

// Package pinger schedules keepalive activity checks on a wake-capable timer.
//
// Each time the timer fires the pinger takes a wake lease, asks the connection
// layer whether a ping is due and returns right away. The lease is released
// when the ping completes, fails, or immediately if no ping was necessary.
package pinger

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/alarmping/activity"
	"github.com/VolantMQ/alarmping/alarm"
	"github.com/VolantMQ/alarmping/dispatcher"
	"github.com/VolantMQ/alarmping/metrics"
	"github.com/VolantMQ/alarmping/wakelock"
)

// nolint: golint
var (
	ErrNotInitialized = errors.New("pinger: not initialized")
	ErrNilSource      = errors.New("pinger: nil activity source")
	ErrNilTimers      = errors.New("pinger: nil timer service")
)

// Pinger keepalive contract driven by connection layer
type Pinger interface {
	activity.Scheduler

	// Init bind activity source. Must be called before Start
	Init(activity.Source) error

	// Start register for fired events and arm timer for keepalive interval
	Start() error

	// Stop cancel timer and unregister. No-op if not started
	Stop()
}

// Config of the pinger
type Config struct {
	// Timers timer service. Required
	Timers alarm.Service

	// Dispatcher delivers fired events. Pinger allocates own if not set
	Dispatcher *dispatcher.Dispatcher

	// WakeLocks power resource provider. Defaults to noop
	WakeLocks wakelock.Provider

	// Observer of wake leases. Optional
	Observer wakelock.Observer

	// Metrics optional
	Metrics metrics.Informer

	// Source if set Init is invoked on allocation
	Source activity.Source

	Log *zap.SugaredLogger
}

// State snapshot of schedule state
type State struct {
	Started      bool
	Armed        bool
	NextFireTime time.Time
	Mode         alarm.Mode
}

// Alarm pinger backed by alarm.Service
type Alarm struct {
	timers        alarm.Service
	dispatcher    *dispatcher.Dispatcher
	ownDispatcher bool
	wakeLocks     wakelock.Provider
	observer      wakelock.Observer
	metrics       metrics.Keepalive
	log           *zap.SugaredLogger

	lock       sync.Mutex
	bridge     *activity.Bridge
	guard      *wakelock.Guard
	reg        dispatcher.ID
	registered bool
	started    bool
	armed      bool
	next       time.Time
	mode       alarm.Mode
	handle     alarm.Handle
	seq        uint64
}

var _ Pinger = (*Alarm)(nil)

// New allocate pinger
func New(c Config) (*Alarm, error) {
	if c.Timers == nil {
		return nil, ErrNilTimers
	}

	a := &Alarm{
		timers:     c.Timers,
		dispatcher: c.Dispatcher,
		wakeLocks:  c.WakeLocks,
		observer:   c.Observer,
		log:        c.Log,
	}

	if a.log == nil {
		a.log = zap.NewNop().Sugar()
	}

	if a.dispatcher == nil {
		a.dispatcher = dispatcher.New(a.log.Named("dispatcher"))
		a.ownDispatcher = true
	}

	if a.wakeLocks == nil {
		a.wakeLocks = wakelock.NewNoop()
	}

	if c.Metrics != nil {
		a.metrics = c.Metrics.Keepalive()
	} else {
		a.metrics = metrics.Noop().Keepalive()
	}

	if c.Source != nil {
		if err := a.Init(c.Source); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Init bind activity source and build wake guard tagged with its client id
func (a *Alarm) Init(src activity.Source) error {
	if src == nil {
		return ErrNilSource
	}

	guard, err := wakelock.NewGuard(wakelock.GuardConfig{
		Provider: a.wakeLocks,
		ClientID: src.ClientID(),
		Observer: a.observer,
		Log:      a.log.Named("wakelock"),
	})
	if err != nil {
		return err
	}

	a.lock.Lock()
	a.bridge = activity.NewBridge(src, a.log)
	a.guard = guard
	a.lock.Unlock()

	return nil
}

// Start register for fired events and arm timer at now + keepalive.
// Calling Start again re-registers and re-arms
func (a *Alarm) Start() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.bridge == nil {
		return ErrNotInitialized
	}

	if a.registered {
		_ = a.dispatcher.Unregister(a.reg)
		a.registered = false
	}

	id, err := a.dispatcher.Register(a.onFired)
	if err != nil {
		return errors.Wrap(err, "pinger: register")
	}

	a.reg = id
	a.registered = true
	a.started = true

	a.scheduleLocked(a.bridge.Source().KeepAlive())

	a.log.Infow("keepalive started", "tag", a.guard.Tag(), "interval", a.bridge.Source().KeepAlive())

	return nil
}

// Stop cancel armed timer and unregister from dispatcher. Never fails.
// In-flight activity check is not interrupted and releases its lease on completion
func (a *Alarm) Stop() {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.started {
		return
	}

	if a.handle != nil {
		a.timers.Cancel(a.handle)
		a.handle = nil
	}

	a.armed = false
	a.started = false

	if a.registered {
		if err := a.dispatcher.Unregister(a.reg); err != nil {
			a.log.Debugw("unregister", "error", err)
		}
		a.registered = false
	}

	a.log.Infow("keepalive stopped")
}

// Schedule arm timer at now + delay replacing pending one.
// Ignored once pinger is stopped
func (a *Alarm) Schedule(delay time.Duration) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.started {
		a.log.Debugw("schedule ignored on stopped pinger", "delay", delay)
		return
	}

	a.scheduleLocked(delay)
}

// State snapshot
func (a *Alarm) State() State {
	a.lock.Lock()
	defer a.lock.Unlock()

	return State{
		Started:      a.started,
		Armed:        a.armed,
		NextFireTime: a.next,
		Mode:         a.mode,
	}
}

// Guard wake guard bound by Init, nil before
func (a *Alarm) Guard() *wakelock.Guard {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.guard
}

// Close stop pinger and, if dispatcher owned, wait for queued fired events
func (a *Alarm) Close() {
	a.Stop()

	if a.ownDispatcher {
		a.dispatcher.Close()
	}
}

func (a *Alarm) scheduleLocked(delay time.Duration) {
	if a.handle != nil {
		a.timers.Cancel(a.handle)
		a.handle = nil
	}

	at := a.timers.Now().Add(delay)
	best := alarm.BestMode(a.timers)
	mode := best

	a.seq++
	seq := a.seq
	reg := a.reg

	for {
		h, err := a.timers.Arm(at, mode, func() {
			a.fire(seq, reg, at)
		})

		if err == nil {
			a.handle = h
			a.armed = true
			a.next = at
			a.mode = mode
			a.metrics.OnArmed(mode != best)
			return
		}

		if errors.Cause(err) == alarm.ErrModeUnsupported && mode > alarm.Inexact {
			a.log.Debugw("timer mode refused, degrading", "mode", mode, "error", err)
			mode--
			continue
		}

		a.armed = false
		a.log.Errorw("arm timer", "at", at, "mode", mode, "error", err)
		return
	}
}

// fire runs on timer context and only hands event over to dispatcher
func (a *Alarm) fire(seq uint64, reg dispatcher.ID, at time.Time) {
	a.lock.Lock()
	if a.seq == seq {
		a.armed = false
		a.handle = nil
	}
	a.lock.Unlock()

	err := a.dispatcher.Deliver(reg, dispatcher.Fired{
		Scheduled: at,
		At:        a.timers.Now(),
	})
	if err == dispatcher.ErrQueueFull {
		a.metrics.OnDropped()
	}
}

func (a *Alarm) onFired(ev dispatcher.Fired) {
	a.metrics.OnFired()

	a.lock.Lock()
	bridge := a.bridge
	guard := a.guard
	if a.started {
		// re-arm before the check so connection layer may refine it through Schedule
		a.scheduleLocked(bridge.Source().KeepAlive())
	}
	a.lock.Unlock()

	lease := guard.Acquire()

	a.metrics.OnCheck()

	tok := bridge.Check(func(activity.Token) {
		a.metrics.OnSuccess()
		lease.Release()
	}, func(t activity.Token, err error) {
		a.metrics.OnFailure()
		a.log.Debugw("activity check failed", "lease", lease.ID(), "error", err)
		lease.Release()
	})

	if tok == nil {
		a.metrics.OnNoToken()
		lease.Release()
		return
	}

	a.log.Debugw("ping dispatched", "token", tok.ID(), "lease", lease.ID(), "late", ev.At.Sub(ev.Scheduled))
}
