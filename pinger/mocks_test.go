package pinger

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/VolantMQ/alarmping/activity"
	"github.com/VolantMQ/alarmping/alarm"
	"github.com/VolantMQ/alarmping/wakelock"
)

type mockHandle struct {
	when time.Time
	mode alarm.Mode
	fn   func()
}

func (h *mockHandle) When() time.Time  { return h.when }
func (h *mockHandle) Mode() alarm.Mode { return h.mode }

// timersMock records arm/cancel calls and fires on demand
type timersMock struct {
	clock  *clock.Mock
	exact  bool
	idle   bool
	refuse map[alarm.Mode]bool

	lock    sync.Mutex
	pending []*mockHandle
	arms    int
	cancels int
}

func newTimersMock() *timersMock {
	return &timersMock{
		clock:  clock.NewMock(),
		refuse: make(map[alarm.Mode]bool),
	}
}

func (m *timersMock) Arm(at time.Time, mode alarm.Mode, fn func()) (alarm.Handle, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.refuse[mode] {
		return nil, alarm.ErrModeUnsupported
	}

	m.arms++
	h := &mockHandle{when: at, mode: mode, fn: fn}
	m.pending = append(m.pending, h)

	return h, nil
}

func (m *timersMock) Cancel(h alarm.Handle) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.cancels++

	for i, p := range m.pending {
		if p == h {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}

	return false
}

func (m *timersMock) SupportsExactWake() bool  { return m.exact }
func (m *timersMock) SupportsIdleBypass() bool { return m.idle }
func (m *timersMock) Now() time.Time           { return m.clock.Now() }

func (m *timersMock) snapshot() []*mockHandle {
	m.lock.Lock()
	defer m.lock.Unlock()

	return append([]*mockHandle(nil), m.pending...)
}

func (m *timersMock) counts() (int, int) {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.arms, m.cancels
}

// fire all pending timers as the platform would
func (m *timersMock) fire() {
	m.lock.Lock()
	list := m.pending
	m.pending = nil
	m.lock.Unlock()

	for _, h := range list {
		h.fn()
	}
}

type sourceMock struct {
	keepAlive time.Duration
	id        string
	check     func(activity.Listener) activity.Token

	lock      sync.Mutex
	checks    int
	listeners []activity.Listener
}

func (s *sourceMock) KeepAlive() time.Duration { return s.keepAlive }
func (s *sourceMock) ClientID() string         { return s.id }

func (s *sourceMock) CheckForActivity(l activity.Listener) activity.Token {
	s.lock.Lock()
	s.checks++
	s.listeners = append(s.listeners, l)
	check := s.check
	s.lock.Unlock()

	if check != nil {
		return check(l)
	}

	return nil
}

func (s *sourceMock) checkCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.checks
}

func (s *sourceMock) listener(i int) activity.Listener {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.listeners[i]
}

type providerMock struct {
	lock     sync.Mutex
	acquired int
	released int
}

type resourceMock struct {
	p *providerMock
}

func (p *providerMock) NewResource(string) (wakelock.Resource, error) {
	return &resourceMock{p: p}, nil
}

func (p *providerMock) Close() error { return nil }

func (p *providerMock) counts() (int, int) {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.acquired, p.released
}

func (r *resourceMock) Acquire() error {
	r.p.lock.Lock()
	r.p.acquired++
	r.p.lock.Unlock()
	return nil
}

func (r *resourceMock) Release() error {
	r.p.lock.Lock()
	r.p.released++
	r.p.lock.Unlock()
	return nil
}
