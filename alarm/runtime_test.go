package alarm

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestRuntimeCapabilities(t *testing.T) {
	s := NewRuntime(clock.NewMock())

	require.False(t, s.SupportsExactWake())
	require.False(t, s.SupportsIdleBypass())
	require.Equal(t, Inexact, BestMode(s))

	_, err := s.Arm(s.Now().Add(time.Second), Exact, func() {})
	require.Equal(t, ErrModeUnsupported, err)

	_, err = s.Arm(s.Now().Add(time.Second), ExactIdle, func() {})
	require.Equal(t, ErrModeUnsupported, err)
}

func TestRuntimeFires(t *testing.T) {
	clk := clock.NewMock()
	s := NewRuntime(clk)

	var fired int32
	at := clk.Now().Add(time.Second)

	h, err := s.Arm(at, Inexact, func() {
		atomic.AddInt32(&fired, 1)
	})
	require.NoError(t, err)
	require.Equal(t, at, h.When())
	require.Equal(t, Inexact, h.Mode())

	clk.Add(999 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))

	clk.Add(time.Millisecond)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, time.Millisecond)

	// fired timer cannot be cancelled
	require.False(t, s.Cancel(h))
}

func TestRuntimeCancel(t *testing.T) {
	clk := clock.NewMock()
	s := NewRuntime(clk)

	var fired int32
	h, err := s.Arm(clk.Now().Add(time.Second), Inexact, func() {
		atomic.AddInt32(&fired, 1)
	})
	require.NoError(t, err)

	require.True(t, s.Cancel(h))
	require.False(t, s.Cancel(h))

	clk.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))

	require.False(t, s.Cancel(nil))
}

type capsMock struct {
	Service
	exact bool
	idle  bool
}

func (c *capsMock) SupportsExactWake() bool  { return c.exact }
func (c *capsMock) SupportsIdleBypass() bool { return c.idle }

func TestBestMode(t *testing.T) {
	require.Equal(t, ExactIdle, BestMode(&capsMock{exact: true, idle: true}))
	require.Equal(t, ExactIdle, BestMode(&capsMock{idle: true}))
	require.Equal(t, Exact, BestMode(&capsMock{exact: true}))
	require.Equal(t, Inexact, BestMode(&capsMock{}))
}

func TestModeString(t *testing.T) {
	require.Equal(t, "exact-idle", ExactIdle.String())
	require.Equal(t, "unknown", Mode(42).String())
}

func TestNewService(t *testing.T) {
	s, err := NewService("runtime", nil)
	require.NoError(t, err)
	require.Equal(t, Inexact, BestMode(s))

	s, err = NewService("auto", nil)
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = NewService("hpet", nil)
	require.Equal(t, ErrUnknownBackend, err)
}
