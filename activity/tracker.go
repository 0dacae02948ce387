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

package activity

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// pingDelta slack applied when comparing idle time against keepalive
// so a timer firing slightly early still triggers a ping
const pingDelta = 100 * time.Millisecond

type pendingPing struct {
	tok    Token
	l      Listener
	sentAt time.Time
}

// Tracker keeps traffic timestamps of a connection and decides when ping is due.
// At most one ping is outstanding at a time
type Tracker struct {
	clock       clock.Clock
	keepAlive   time.Duration
	pingTimeout time.Duration

	lock         sync.Mutex
	lastOutbound time.Time
	lastInbound  time.Time
	pending      *pendingPing
}

// NewTracker allocate tracker. Nil clock defaults to wall clock
func NewTracker(keepAlive, pingTimeout time.Duration, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}

	now := clk.Now()

	return &Tracker{
		clock:        clk,
		keepAlive:    keepAlive,
		pingTimeout:  pingTimeout,
		lastOutbound: now,
		lastInbound:  now,
	}
}

// KeepAlive interval tracker has been configured with
func (t *Tracker) KeepAlive() time.Duration {
	return t.keepAlive
}

// Sent record outbound traffic
func (t *Tracker) Sent() {
	t.lock.Lock()
	t.lastOutbound = t.clock.Now()
	t.lock.Unlock()
}

// Received record inbound traffic
func (t *Tracker) Received() {
	t.lock.Lock()
	t.lastInbound = t.clock.Now()
	t.lock.Unlock()
}

// Check sends ping over send if connection has been idle for keepalive.
// Returns token of dispatched ping or nil, along with delay until next check is due.
// Once ping is sent next check is due at its deadline.
// Outstanding ping that has not been answered within ping timeout is failed with ErrPingTimeout
func (t *Tracker) Check(l Listener, send func() error) (Token, time.Duration) {
	var expired *pendingPing

	t.lock.Lock()

	now := t.clock.Now()

	if t.pending != nil {
		if now.Sub(t.pending.sentAt) < t.pingTimeout {
			next := t.pingTimeout - now.Sub(t.pending.sentAt)
			t.lock.Unlock()
			return nil, next
		}

		expired = t.pending
		t.pending = nil
	}

	if expired != nil {
		t.lock.Unlock()

		expired.l.OnFailure(expired.tok, ErrPingTimeout)

		return nil, t.keepAlive
	}

	idle := now.Sub(t.lastOutbound)
	if idleIn := now.Sub(t.lastInbound); idleIn > idle {
		idle = idleIn
	}

	if idle < t.keepAlive-pingDelta {
		t.lock.Unlock()

		return nil, t.keepAlive - idle
	}

	p := &pendingPing{
		tok:    NewToken(),
		l:      l,
		sentAt: now,
	}
	t.pending = p
	t.lastOutbound = now
	t.lock.Unlock()

	if err := send(); err != nil {
		t.lock.Lock()
		if t.pending == p {
			t.pending = nil
		}
		t.lock.Unlock()

		l.OnFailure(p.tok, err)

		return p.tok, t.keepAlive
	}

	return p.tok, t.pingTimeout
}

// Complete ping response arrived
func (t *Tracker) Complete() {
	t.lock.Lock()
	t.lastInbound = t.clock.Now()
	p := t.pending
	t.pending = nil
	t.lock.Unlock()

	if p != nil {
		p.l.OnSuccess(p.tok)
	}
}

// Fail outstanding ping if any
func (t *Tracker) Fail(err error) {
	t.lock.Lock()
	p := t.pending
	t.pending = nil
	t.lock.Unlock()

	if p != nil {
		p.l.OnFailure(p.tok, err)
	}
}

// Outstanding token of ping awaiting response
func (t *Tracker) Outstanding() Token {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.pending == nil {
		return nil
	}

	return t.pending.tok
}
