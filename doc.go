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

// Package alarmping keeps MQTT client connection alive while the host is
// allowed to sleep.
//
// Instead of a process timer which stops ticking during suspend, keepalive
// checks are driven by a wake-capable platform timer. Every time it fires the
// host is kept awake just long enough for the connection layer to send a ping
// and receive its response:
//
//   alarm       wake-capable timers (timerfd alarm clocks, runtime fallback)
//   dispatcher  hands fired events over from timer context to the pinger
//   wakelock    reference counted wake leases (logind inhibitor, caffeinate)
//   activity    contract with the connection layer and ping bookkeeping
//   pinger      the keepalive scheduler tying the above together
//   transport   websocket connection to the broker acting as activity source
//   persistence audit trail of wake leases
//   metrics     counters exported to prometheus
//
// A typical wiring, as done by cmd/alarmping:
//
//   timers, _ := alarm.NewService("auto", log)
//   p, _ := pinger.New(pinger.Config{Timers: timers, WakeLocks: locks})
//   ws, _ := transport.Dial(ctx, transport.Config{URL: url, ClientID: id, KeepAlive: ka, Scheduler: p})
//   _ = p.Init(ws)
//   _ = p.Start()
//   ...
//   p.Stop()
package alarmping
