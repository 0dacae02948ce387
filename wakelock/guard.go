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

package wakelock

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GuardConfig configures guard
type GuardConfig struct {
	Provider Provider
	ClientID string
	Observer Observer
	Clock    clock.Clock
	Log      *zap.SugaredLogger
}

// Guard tracks wake leases of single client
type Guard struct {
	provider Provider
	observer Observer
	clock    clock.Clock
	log      *zap.SugaredLogger
	tag      string

	lock   sync.Mutex
	leases map[string]*Lease
}

// Lease single acquisition of wake resource
type Lease struct {
	g          *Guard
	res        Resource
	id         string
	acquiredAt time.Time
	once       sync.Once
	lock       sync.Mutex
	held       bool
}

// NewGuard allocate guard. Tag is derived from client id once and never changes
func NewGuard(c GuardConfig) (*Guard, error) {
	if c.Provider == nil {
		return nil, ErrNilProvider
	}

	if len(c.ClientID) == 0 {
		return nil, ErrEmptyClientID
	}

	g := &Guard{
		provider: c.Provider,
		observer: c.Observer,
		clock:    c.Clock,
		log:      c.Log,
		tag:      TagPrefix + c.ClientID,
		leases:   make(map[string]*Lease),
	}

	if g.clock == nil {
		g.clock = clock.New()
	}

	if g.log == nil {
		g.log = zap.NewNop().Sugar()
	}

	return g, nil
}

// Tag of the wake resource
func (g *Guard) Tag() string {
	return g.tag
}

// Acquire new lease. Never fails: if platform refuses the resource lease is
// degraded but still accounted until released
func (g *Guard) Acquire() *Lease {
	l := &Lease{
		g:          g,
		id:         uuid.New().String(),
		acquiredAt: g.clock.Now(),
		held:       true,
	}

	res, err := g.provider.NewResource(g.tag)
	if err == nil {
		err = res.Acquire()
	}

	if err != nil {
		g.log.Warnw("wake resource unavailable", "tag", g.tag, "lease", l.id, "error", err)
		if g.observer != nil {
			g.observer.OnDegraded(g.tag, l.id, l.acquiredAt, err)
		}
	} else {
		l.res = res
	}

	g.lock.Lock()
	g.leases[l.id] = l
	g.lock.Unlock()

	g.log.Debugw("wake lease acquired", "tag", g.tag, "lease", l.id)

	if g.observer != nil {
		g.observer.OnAcquired(g.tag, l.id, l.acquiredAt)
	}

	return l
}

// Held number of outstanding leases
func (g *Guard) Held() int {
	g.lock.Lock()
	defer g.lock.Unlock()

	return len(g.leases)
}

// OldestHeld how long the oldest outstanding lease has been held
func (g *Guard) OldestHeld() time.Duration {
	g.lock.Lock()
	defer g.lock.Unlock()

	var oldest time.Duration
	now := g.clock.Now()

	for _, l := range g.leases {
		if d := now.Sub(l.acquiredAt); d > oldest {
			oldest = d
		}
	}

	return oldest
}

// ReleaseAll outstanding leases. Intended for process shutdown only
func (g *Guard) ReleaseAll() int {
	g.lock.Lock()
	list := make([]*Lease, 0, len(g.leases))
	for _, l := range g.leases {
		list = append(list, l)
	}
	g.lock.Unlock()

	released := 0
	for _, l := range list {
		if l.Release() {
			released++
		}
	}

	return released
}

// ID of the lease
func (l *Lease) ID() string {
	return l.id
}

// Held either lease still held
func (l *Lease) Held() bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.held
}

// Degraded lease has no platform resource behind it
func (l *Lease) Degraded() bool {
	return l.res == nil
}

// Release lease. Safe to call multiple times and from any goroutine.
// Returns true only for the call which actually released
func (l *Lease) Release() bool {
	released := false

	l.once.Do(func() {
		l.lock.Lock()
		if !l.held {
			l.lock.Unlock()
			return
		}
		l.held = false
		l.lock.Unlock()

		released = true

		if l.res != nil {
			if err := l.res.Release(); err != nil {
				l.g.log.Warnw("wake resource release", "tag", l.g.tag, "lease", l.id, "error", err)
			}
		}

		l.g.lock.Lock()
		delete(l.g.leases, l.id)
		l.g.lock.Unlock()

		now := l.g.clock.Now()
		heldFor := now.Sub(l.acquiredAt)

		l.g.log.Debugw("wake lease released", "tag", l.g.tag, "lease", l.id, "held", heldFor)

		if l.g.observer != nil {
			l.g.observer.OnReleased(l.g.tag, l.id, now, heldFor)
		}
	})

	return released
}
