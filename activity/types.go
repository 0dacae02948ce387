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

// Package activity connects the keepalive scheduler with the connection layer.
//
// The connection layer decides whether a keepalive ping is due and reports the
// outcome of the ping asynchronously through a Listener. The scheduler only sees
// a Token for a dispatched ping, or nil when nothing was necessary.
package activity

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// nolint: golint
var (
	ErrPingTimeout    = errors.New("activity: ping response timed out")
	ErrConnectionLost = errors.New("activity: connection lost")
)

// Token identifies pending activity check
type Token interface {
	ID() string
}

type token struct {
	id string
}

// NewToken allocate token with unique id
func NewToken() Token {
	return &token{id: uuid.New().String()}
}

// ID of the token
func (t *token) ID() string {
	return t.id
}

// Listener receives outcome of the activity check
// Exactly one of the methods is invoked per token
type Listener interface {
	OnSuccess(Token)
	OnFailure(Token, error)
}

// ListenerFuncs adapts pair of functions to Listener
// Nil members are ignored
type ListenerFuncs struct {
	Success func(Token)
	Failure func(Token, error)
}

var _ Listener = (*ListenerFuncs)(nil)

// OnSuccess ...
func (l *ListenerFuncs) OnSuccess(t Token) {
	if l.Success != nil {
		l.Success(t)
	}
}

// OnFailure ...
func (l *ListenerFuncs) OnFailure(t Token, err error) {
	if l.Failure != nil {
		l.Failure(t, err)
	}
}

// Source is implemented by the connection layer
type Source interface {
	// KeepAlive configured keepalive interval
	KeepAlive() time.Duration

	// CheckForActivity sends ping if it is due and returns token tracking it.
	// Returns nil if no ping was necessary, in which case listener is never invoked
	CheckForActivity(Listener) Token

	// ClientID identifier of the connection
	ClientID() string
}

// Scheduler allows connection layer to adjust next check time
type Scheduler interface {
	Schedule(delay time.Duration)
}
