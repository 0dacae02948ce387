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

// Package dispatcher delivers timer-fired events to registered handlers.
//
// Each registration owns a buffered channel and a goroutine draining it, so the
// timer context never blocks on a handler and every delivered event is handled
// exactly once, in delivery order. Unregistering closes the channel: events
// already queued still run to completion, later deliveries are refused.
package dispatcher

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// nolint: golint
var (
	ErrNotRegistered = errors.New("dispatcher: not registered")
	ErrNilHandler    = errors.New("dispatcher: nil handler")
	ErrClosed        = errors.New("dispatcher: closed")
	ErrQueueFull     = errors.New("dispatcher: queue full")
)

// queueSize events buffered per registration
const queueSize = 16

// ID registration identifier
type ID string

// Fired event delivered when armed timer elapses
type Fired struct {
	// Scheduled time timer was armed for
	Scheduled time.Time
	// At time timer actually fired
	At time.Time
}

// Handler processes fired events
type Handler func(Fired)

type registration struct {
	id     ID
	h      Handler
	events chan Fired
}

// Dispatcher routes fired events to registrations
type Dispatcher struct {
	log    *zap.SugaredLogger
	lock   sync.RWMutex
	regs   map[ID]*registration
	wg     sync.WaitGroup
	closed bool
}

// New allocate dispatcher
func New(log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Dispatcher{
		log:  log,
		regs: make(map[ID]*registration),
	}
}

// Register handler. Returned id is used to target deliveries and to unregister
func (d *Dispatcher) Register(h Handler) (ID, error) {
	if h == nil {
		return "", ErrNilHandler
	}

	r := &registration{
		id:     ID(uuid.New().String()),
		h:      h,
		events: make(chan Fired, queueSize),
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.closed {
		return "", ErrClosed
	}

	d.regs[r.id] = r

	d.wg.Add(1)
	go d.run(r)

	return r.id, nil
}

// Unregister handler. Events already queued are still handled
// Returns ErrNotRegistered if id unknown or already unregistered
func (d *Dispatcher) Unregister(id ID) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	r, ok := d.regs[id]
	if !ok {
		return ErrNotRegistered
	}

	delete(d.regs, id)
	close(r.events)

	return nil
}

// Deliver event to registration without blocking.
// Returns ErrNotRegistered if registration is gone and ErrQueueFull if event was dropped on overflow
func (d *Dispatcher) Deliver(id ID, ev Fired) error {
	d.lock.RLock()
	defer d.lock.RUnlock()

	r, ok := d.regs[id]
	if !ok {
		d.log.Debugw("fired event for unknown registration dropped", "id", id)
		return ErrNotRegistered
	}

	select {
	case r.events <- ev:
		return nil
	default:
		d.log.Warnw("fired event queue overflow", "id", id)
		return ErrQueueFull
	}
}

// Registered number of active registrations
func (d *Dispatcher) Registered() int {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return len(d.regs)
}

// Close unregister all handlers and wait for queued events to be handled
func (d *Dispatcher) Close() {
	d.lock.Lock()
	d.closed = true
	for id, r := range d.regs {
		delete(d.regs, id)
		close(r.events)
	}
	d.lock.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(r *registration) {
	defer d.wg.Done()

	for ev := range r.events {
		d.handle(r, ev)
	}
}

func (d *Dispatcher) handle(r *registration, ev Fired) {
	defer func() {
		if e := recover(); e != nil {
			d.log.Errorw("fired handler panic", "id", r.id, "panic", e)
		}
	}()

	r.h(ev)
}
