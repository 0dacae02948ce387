package pinger

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/VolantMQ/alarmping/activity"
	"github.com/VolantMQ/alarmping/alarm"
	"github.com/VolantMQ/alarmping/dispatcher"
	"github.com/VolantMQ/alarmping/metrics"
	"github.com/VolantMQ/alarmping/wakelock"
)

func newTestPinger(t *testing.T, timers alarm.Service, src *sourceMock, p wakelock.Provider) (*Alarm, *dispatcher.Dispatcher) {
	d := dispatcher.New(nil)

	a, err := New(Config{
		Timers:     timers,
		Dispatcher: d,
		WakeLocks:  p,
		Source:     src,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		a.Close()
		d.Close()
	})

	return a, d
}

func waitReleased(t *testing.T, a *Alarm) {
	require.Eventually(t, func() bool {
		return a.Guard().Held() == 0
	}, time.Second, time.Millisecond)
}

func TestNewErrors(t *testing.T) {
	_, err := New(Config{})
	require.Equal(t, ErrNilTimers, err)

	a, err := New(Config{Timers: newTimersMock()})
	require.NoError(t, err)
	require.Equal(t, ErrNotInitialized, a.Start())
	require.Equal(t, ErrNilSource, a.Init(nil))

	err = a.Init(&sourceMock{keepAlive: time.Second})
	require.Equal(t, wakelock.ErrEmptyClientID, err)
	require.Nil(t, a.Guard())
}

func TestInitTagFromClientID(t *testing.T) {
	a, err := New(Config{Timers: newTimersMock()})
	require.NoError(t, err)

	require.NoError(t, a.Init(&sourceMock{id: "sensor-9", keepAlive: time.Second}))
	require.Equal(t, "alarmping:sensor-9", a.Guard().Tag())
}

func TestStartArmsKeepAlive(t *testing.T) {
	timers := newTimersMock()
	src := &sourceMock{id: "c1", keepAlive: 60 * time.Second}
	a, d := newTestPinger(t, timers, src, nil)

	start := timers.Now()
	require.NoError(t, a.Start())

	pending := timers.snapshot()
	require.Len(t, pending, 1)
	require.Equal(t, start.Add(60*time.Second), pending[0].when)
	require.Equal(t, 1, d.Registered())

	st := a.State()
	require.True(t, st.Started)
	require.True(t, st.Armed)
	require.Equal(t, start.Add(60*time.Second), st.NextFireTime)
	require.Equal(t, alarm.Inexact, st.Mode)
}

func TestStopBeforeStart(t *testing.T) {
	timers := newTimersMock()
	a, d := newTestPinger(t, timers, &sourceMock{id: "c1", keepAlive: time.Second}, nil)

	require.NotPanics(t, a.Stop)

	arms, cancels := timers.counts()
	require.Equal(t, 0, arms)
	require.Equal(t, 0, cancels)
	require.Equal(t, 0, d.Registered())
}

func TestStopTwice(t *testing.T) {
	timers := newTimersMock()
	a, d := newTestPinger(t, timers, &sourceMock{id: "c1", keepAlive: time.Second}, nil)

	require.NoError(t, a.Start())
	a.Stop()

	arms, cancels := timers.counts()
	require.Empty(t, timers.snapshot())
	require.Equal(t, 0, d.Registered())
	require.False(t, a.State().Started)
	require.False(t, a.State().Armed)

	a.Stop()

	arms2, cancels2 := timers.counts()
	require.Equal(t, arms, arms2)
	require.Equal(t, cancels, cancels2)
}

func TestDoubleStartReArms(t *testing.T) {
	timers := newTimersMock()
	a, d := newTestPinger(t, timers, &sourceMock{id: "c1", keepAlive: time.Second}, nil)

	require.NoError(t, a.Start())
	timers.clock.Add(100 * time.Millisecond)
	require.NoError(t, a.Start())

	pending := timers.snapshot()
	require.Len(t, pending, 1)
	require.Equal(t, timers.Now().Add(time.Second), pending[0].when)
	require.Equal(t, 1, d.Registered())
}

func TestScheduleTwiceSinglePending(t *testing.T) {
	timers := newTimersMock()
	a, _ := newTestPinger(t, timers, &sourceMock{id: "c1", keepAlive: time.Minute}, nil)

	require.NoError(t, a.Start())

	a.Schedule(10 * time.Second)
	a.Schedule(20 * time.Second)

	pending := timers.snapshot()
	require.Len(t, pending, 1)
	require.Equal(t, timers.Now().Add(20*time.Second), pending[0].when)
	require.Equal(t, timers.Now().Add(20*time.Second), a.State().NextFireTime)
}

func TestScheduleIgnoredWhenStopped(t *testing.T) {
	timers := newTimersMock()
	a, _ := newTestPinger(t, timers, &sourceMock{id: "c1", keepAlive: time.Minute}, nil)

	a.Schedule(time.Second)

	arms, _ := timers.counts()
	require.Equal(t, 0, arms)
	require.False(t, a.State().Armed)
}

func TestModeDegradation(t *testing.T) {
	timers := newTimersMock()
	timers.exact = true
	timers.idle = true

	m := metrics.New()
	a, err := New(Config{
		Timers:  timers,
		Metrics: m,
		Source:  &sourceMock{id: "c1", keepAlive: time.Minute},
	})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Start())
	require.Equal(t, alarm.ExactIdle, timers.snapshot()[0].mode)

	timers.refuse[alarm.ExactIdle] = true
	a.Schedule(time.Second)
	require.Equal(t, alarm.Exact, timers.snapshot()[0].mode)
	require.Equal(t, alarm.Exact, a.State().Mode)

	timers.refuse[alarm.Exact] = true
	a.Schedule(time.Second)
	require.Equal(t, alarm.Inexact, timers.snapshot()[0].mode)
	require.True(t, a.State().Armed)

	s := m.Snapshot()
	require.Equal(t, uint64(3), s.Armed)
	require.Equal(t, uint64(2), s.ArmedDegraded)
}

func TestLeaseReleasedOnSuccess(t *testing.T) {
	timers := newTimersMock()
	p := &providerMock{}
	tok := activity.NewToken()
	src := &sourceMock{id: "c1", keepAlive: time.Second, check: func(activity.Listener) activity.Token {
		return tok
	}}

	a, _ := newTestPinger(t, timers, src, p)
	require.NoError(t, a.Start())

	timers.fire()

	require.Eventually(t, func() bool {
		return src.checkCount() == 1
	}, time.Second, time.Millisecond)

	// ping in flight keeps lease held
	require.Equal(t, 1, a.Guard().Held())

	src.listener(0).OnSuccess(tok)
	src.listener(0).OnSuccess(tok)

	waitReleased(t, a)
	acquired, released := p.counts()
	require.Equal(t, 1, acquired)
	require.Equal(t, 1, released)
}

func TestLeaseReleasedOnFailure(t *testing.T) {
	timers := newTimersMock()
	p := &providerMock{}
	tok := activity.NewToken()
	src := &sourceMock{id: "c1", keepAlive: time.Second, check: func(l activity.Listener) activity.Token {
		go l.OnFailure(tok, activity.ErrPingTimeout)
		return tok
	}}

	a, _ := newTestPinger(t, timers, src, p)
	require.NoError(t, a.Start())

	timers.fire()

	waitReleased(t, a)
	require.Eventually(t, func() bool {
		_, released := p.counts()
		return released == 1
	}, time.Second, time.Millisecond)

	acquired, _ := p.counts()
	require.Equal(t, 1, acquired)
}

func TestLeaseReleasedOnNoTokenBeforeReturn(t *testing.T) {
	timers := newTimersMock()
	p := &providerMock{}
	src := &sourceMock{id: "c1", keepAlive: time.Second}

	a, _ := newTestPinger(t, timers, src, p)
	require.NoError(t, a.Start())

	a.onFired(dispatcher.Fired{})

	require.Equal(t, 0, a.Guard().Held())
	acquired, released := p.counts()
	require.Equal(t, 1, acquired)
	require.Equal(t, 1, released)
}

func TestFireReArms(t *testing.T) {
	timers := newTimersMock()
	src := &sourceMock{id: "c1", keepAlive: time.Second}
	a, _ := newTestPinger(t, timers, src, nil)

	require.NoError(t, a.Start())

	timers.clock.Add(time.Second)
	timers.fire()

	require.Eventually(t, func() bool {
		return src.checkCount() == 1 && len(timers.snapshot()) == 1
	}, time.Second, time.Millisecond)

	require.Equal(t, timers.Now().Add(time.Second), timers.snapshot()[0].when)
}

func TestSourceRefinesSchedule(t *testing.T) {
	timers := newTimersMock()
	src := &sourceMock{id: "c1", keepAlive: time.Minute}
	a, _ := newTestPinger(t, timers, src, nil)

	src.check = func(activity.Listener) activity.Token {
		a.Schedule(15 * time.Second)
		return nil
	}

	require.NoError(t, a.Start())
	timers.fire()

	require.Eventually(t, func() bool {
		return src.checkCount() == 1
	}, time.Second, time.Millisecond)

	pending := timers.snapshot()
	require.Len(t, pending, 1)
	require.Equal(t, timers.Now().Add(15*time.Second), pending[0].when)
}

func TestFireAfterStopReleasesWithoutReArm(t *testing.T) {
	timers := newTimersMock()
	p := &providerMock{}

	unblock := make(chan struct{})
	var calls int32

	src := &sourceMock{id: "c1", keepAlive: time.Second}
	src.check = func(activity.Listener) activity.Token {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-unblock
		}
		return nil
	}

	a, _ := newTestPinger(t, timers, src, p)
	require.NoError(t, a.Start())

	// first fire blocks inside the activity check holding its lease
	timers.fire()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, time.Millisecond)

	// second fire is queued behind it, then pinger stops
	timers.fire()
	a.Stop()

	armsAtStop, _ := timers.counts()
	require.Equal(t, 1, a.Guard().Held())

	close(unblock)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, time.Second, time.Millisecond)
	waitReleased(t, a)

	arms, _ := timers.counts()
	require.Equal(t, armsAtStop, arms)
	require.Empty(t, timers.snapshot())
	require.False(t, a.State().Armed)

	acquired, released := p.counts()
	require.Equal(t, 2, acquired)
	require.Equal(t, 2, released)
}

func TestTimerFiringAfterStopIsDropped(t *testing.T) {
	timers := newTimersMock()
	src := &sourceMock{id: "c1", keepAlive: time.Second}
	a, _ := newTestPinger(t, timers, src, nil)

	require.NoError(t, a.Start())
	h := timers.snapshot()[0]
	a.Stop()

	// platform delivers a fire that raced with cancel
	h.fn()

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 0, src.checkCount())
	require.Equal(t, 0, a.Guard().Held())
}

func TestOverlappingFires(t *testing.T) {
	timers := newTimersMock()
	p := &providerMock{}

	tokens := make(chan activity.Token, 2)
	src := &sourceMock{id: "c1", keepAlive: time.Second}
	src.check = func(activity.Listener) activity.Token {
		tok := activity.NewToken()
		tokens <- tok
		return tok
	}

	a, _ := newTestPinger(t, timers, src, p)
	require.NoError(t, a.Start())

	timers.fire()
	first := <-tokens
	timers.fire()
	second := <-tokens

	require.Equal(t, 2, a.Guard().Held())

	// completions arrive out of order on foreign goroutines
	go src.listener(1).OnSuccess(second)
	go src.listener(0).OnFailure(first, errors.New("connection reset"))

	waitReleased(t, a)
	require.Eventually(t, func() bool {
		_, released := p.counts()
		return released == 2
	}, time.Second, time.Millisecond)
}

func TestScenarioSingleFireAfterInterval(t *testing.T) {
	clk := clock.NewMock()
	timers := alarm.NewRuntime(clk)
	src := &sourceMock{id: "c1", keepAlive: 1000 * time.Millisecond}

	a, _ := newTestPinger(t, timers, src, nil)
	require.NoError(t, a.Start())

	clk.Add(999 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 0, src.checkCount())

	clk.Add(time.Millisecond)
	require.Eventually(t, func() bool {
		return src.checkCount() == 1
	}, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, src.checkCount())

	// re-armed one interval after the fire
	st := a.State()
	require.True(t, st.Armed)
	require.Equal(t, clk.Now().Add(time.Second), st.NextFireTime)
}

func TestMetricsCounted(t *testing.T) {
	timers := newTimersMock()
	m := metrics.New()
	tok := activity.NewToken()

	var withToken int32
	src := &sourceMock{id: "c1", keepAlive: time.Second}
	src.check = func(activity.Listener) activity.Token {
		if atomic.AddInt32(&withToken, 1) == 1 {
			return tok
		}
		return nil
	}

	a, err := New(Config{Timers: timers, Metrics: m, Source: src})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Start())
	timers.fire()
	require.Eventually(t, func() bool { return src.checkCount() == 1 }, time.Second, time.Millisecond)
	src.listener(0).OnSuccess(tok)

	timers.fire()
	require.Eventually(t, func() bool { return m.Snapshot().NoToken == 1 }, time.Second, time.Millisecond)

	s := m.Snapshot()
	require.Equal(t, uint64(2), s.Fired)
	require.Equal(t, uint64(2), s.Checks)
	require.Equal(t, uint64(1), s.Success)
}

func TestDroppedFiresCounted(t *testing.T) {
	timers := newTimersMock()
	m := metrics.New()
	d := dispatcher.New(nil)

	block := make(chan struct{})
	src := &sourceMock{id: "c1", keepAlive: time.Second}
	src.check = func(activity.Listener) activity.Token {
		<-block
		return nil
	}

	a, err := New(Config{Timers: timers, Dispatcher: d, Metrics: m, Source: src})
	require.NoError(t, err)
	require.NoError(t, a.Start())

	a.lock.Lock()
	reg, seq := a.reg, a.seq
	a.lock.Unlock()

	// handler is stuck in the first check so the queue fills up
	a.fire(seq, reg, timers.Now())
	require.Eventually(t, func() bool { return src.checkCount() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 20; i++ {
		a.fire(seq, reg, timers.Now())
	}

	require.Equal(t, uint64(4), m.Snapshot().Dropped)

	close(block)
	a.Close()
	d.Close()

	require.Equal(t, uint64(17), m.Snapshot().Fired)
}
