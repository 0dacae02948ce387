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

// Package transport provides websocket connection to the broker which acts as
// activity source for keepalive scheduler.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/alarmping/activity"
)

// SubProtocol negotiated with broker
const SubProtocol = "mqtt"

// nolint: golint
var (
	ErrInvalidArgs = errors.New("transport: invalid arguments")
	ErrClosed      = errors.New("transport: connection closed")
)

// Config of websocket connection
type Config struct {
	// URL of the broker, ws:// or wss://
	URL string

	// ClientID identifier reported to the scheduler
	ClientID string

	KeepAlive   time.Duration
	PingTimeout time.Duration

	// Scheduler receives next check delay after every activity check. Optional
	Scheduler activity.Scheduler

	// OnMessage invoked from read loop for every data message. Optional
	OnMessage func(msgType int, data []byte)

	// Header sent with handshake request. Optional
	Header http.Header

	// Dialer defaults to websocket.DefaultDialer
	Dialer *websocket.Dialer

	// Clock defaults to wall clock
	Clock clock.Clock

	Log *zap.SugaredLogger
}

// WS websocket connection tracking traffic for keepalive
type WS struct {
	conn        *websocket.Conn
	tracker     *activity.Tracker
	clientID    string
	pingTimeout time.Duration
	scheduler   activity.Scheduler
	onMessage   func(int, []byte)
	log         *zap.SugaredLogger

	writeLock sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	errLock   sync.Mutex
	err       error
}

var _ activity.Source = (*WS)(nil)

// Dial connect to the broker and start read loop
func Dial(ctx context.Context, c Config) (*WS, error) {
	if c.URL == "" || c.ClientID == "" || c.KeepAlive <= 0 {
		return nil, ErrInvalidArgs
	}

	dialer := c.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.Subprotocols = []string{SubProtocol}
		dialer = &d
	}

	log := c.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	pingTimeout := c.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = c.KeepAlive
	}

	conn, resp, err := dialer.DialContext(ctx, c.URL, c.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() // nolint: errcheck
	}

	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.URL)
	}

	w := &WS{
		conn:        conn,
		tracker:     activity.NewTracker(c.KeepAlive, pingTimeout, c.Clock),
		clientID:    c.ClientID,
		pingTimeout: pingTimeout,
		scheduler:   c.Scheduler,
		onMessage:   c.OnMessage,
		log:         log,
		done:        make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		w.tracker.Complete()
		return nil
	})

	go w.readLoop()

	log.Infow("connected", "url", c.URL, "clientID", c.ClientID, "subprotocol", conn.Subprotocol())

	return w, nil
}

// KeepAlive ...
func (w *WS) KeepAlive() time.Duration {
	return w.tracker.KeepAlive()
}

// ClientID ...
func (w *WS) ClientID() string {
	return w.clientID
}

// CheckForActivity send ping control frame if connection has been idle for keepalive
func (w *WS) CheckForActivity(l activity.Listener) activity.Token {
	select {
	case <-w.done:
		return nil
	default:
	}

	tok, next := w.tracker.Check(l, w.ping)

	if w.scheduler != nil {
		w.scheduler.Schedule(next)
	}

	return tok
}

// Send data message to the broker
func (w *WS) Send(msgType int, data []byte) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	w.writeLock.Lock()
	err := w.conn.WriteMessage(msgType, data)
	w.writeLock.Unlock()

	if err != nil {
		return errors.Wrap(err, "write message")
	}

	w.tracker.Sent()

	return nil
}

// Done closed once connection is gone
func (w *WS) Done() <-chan struct{} {
	return w.done
}

// Err reason connection is gone, nil while alive
func (w *WS) Err() error {
	w.errLock.Lock()
	defer w.errLock.Unlock()

	return w.err
}

// Close connection. Outstanding ping fails with activity.ErrConnectionLost
func (w *WS) Close() error {
	var err error

	w.closeOnce.Do(func() {
		w.tracker.Fail(activity.ErrConnectionLost)
		w.finish(ErrClosed)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		err = w.conn.Close()
	})

	return err
}

func (w *WS) ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.pingTimeout))
}

func (w *WS) finish(err error) {
	w.errLock.Lock()
	if w.err == nil {
		w.err = err
		close(w.done)
	}
	w.errLock.Unlock()
}

func (w *WS) readLoop() {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			w.log.Debugw("read loop stopped", "clientID", w.clientID, "error", err)
			w.tracker.Fail(activity.ErrConnectionLost)
			w.finish(errors.Wrap(err, "read"))
			return
		}

		w.tracker.Received()

		if w.onMessage != nil {
			w.onMessage(mt, data)
		}
	}
}
