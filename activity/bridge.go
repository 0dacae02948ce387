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
	"sync/atomic"

	"go.uber.org/zap"
)

// Bridge invokes activity check on the connection layer
type Bridge struct {
	src Source
	log *zap.SugaredLogger
}

// NewBridge allocate bridge over source
func NewBridge(src Source, log *zap.SugaredLogger) *Bridge {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Bridge{
		src: src,
		log: log,
	}
}

// Source the bridge is bound to
func (b *Bridge) Source() Source {
	return b.src
}

// Check asks connection layer whether ping is due.
// If token returned exactly one of onSuccess/onFailure is invoked once,
// from whatever goroutine the connection layer completes the ping on.
// Nil token means nothing has been dispatched and neither callback fires
func (b *Bridge) Check(onSuccess func(Token), onFailure func(Token, error)) Token {
	l := &onceListener{
		success: onSuccess,
		failure: onFailure,
		log:     b.log,
	}

	tok := b.src.CheckForActivity(l)
	if tok == nil {
		// late callbacks for a check that has not been dispatched are dropped
		if l.consume() {
			return nil
		}

		b.log.Debug("activity check completed synchronously without token")
	}

	return tok
}

type onceListener struct {
	success func(Token)
	failure func(Token, error)
	log     *zap.SugaredLogger
	done    uint32
}

func (l *onceListener) consume() bool {
	return atomic.CompareAndSwapUint32(&l.done, 0, 1)
}

func (l *onceListener) OnSuccess(t Token) {
	if !l.consume() {
		l.log.Debugw("duplicate completion of activity check dropped", "token", tokenID(t))
		return
	}

	if l.success != nil {
		l.success(t)
	}
}

func (l *onceListener) OnFailure(t Token, err error) {
	if !l.consume() {
		l.log.Debugw("duplicate failure of activity check dropped", "token", tokenID(t), "error", err)
		return
	}

	if l.failure != nil {
		l.failure(t, err)
	}
}

func tokenID(t Token) string {
	if t == nil {
		return ""
	}

	return t.ID()
}
