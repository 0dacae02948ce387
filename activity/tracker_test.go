package activity

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	success []Token
	failure []error
}

func (r *recordingListener) OnSuccess(t Token) {
	r.success = append(r.success, t)
}

func (r *recordingListener) OnFailure(_ Token, err error) {
	r.failure = append(r.failure, err)
}

func TestTrackerNotDueAfterTraffic(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)

	clk.Add(40 * time.Second)
	tr.Sent()
	tr.Received()
	clk.Add(30 * time.Second)

	sent := 0
	tok, next := tr.Check(&recordingListener{}, func() error {
		sent++
		return nil
	})

	require.Nil(t, tok)
	require.Equal(t, 0, sent)
	require.Equal(t, 30*time.Second, next)
}

func TestTrackerPingDue(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)
	l := &recordingListener{}

	clk.Add(time.Minute)

	sent := 0
	tok, next := tr.Check(l, func() error {
		sent++
		return nil
	})

	require.NotNil(t, tok)
	require.Equal(t, 1, sent)
	require.Equal(t, 10*time.Second, next)
	require.Equal(t, tok, tr.Outstanding())

	tr.Complete()
	require.Len(t, l.success, 1)
	require.Equal(t, tok, l.success[0])
	require.Nil(t, tr.Outstanding())

	// second completion has nothing to complete
	tr.Complete()
	require.Len(t, l.success, 1)
}

func TestTrackerEarlyFireWithinDelta(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)

	clk.Add(time.Minute - 50*time.Millisecond)

	tok, _ := tr.Check(&recordingListener{}, func() error { return nil })
	require.NotNil(t, tok)
}

func TestTrackerSingleOutstanding(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)
	l := &recordingListener{}

	clk.Add(time.Minute)
	tok, _ := tr.Check(l, func() error { return nil })
	require.NotNil(t, tok)

	clk.Add(4 * time.Second)
	again, next := tr.Check(l, func() error {
		t.Fatal("ping must not be sent while one is outstanding")
		return nil
	})
	require.Nil(t, again)
	require.Equal(t, 6*time.Second, next)
}

func TestTrackerPingTimeout(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)
	l := &recordingListener{}

	clk.Add(time.Minute)
	tok, _ := tr.Check(l, func() error { return nil })
	require.NotNil(t, tok)

	clk.Add(10 * time.Second)
	again, _ := tr.Check(l, func() error { return nil })
	require.Nil(t, again)
	require.Equal(t, []error{ErrPingTimeout}, l.failure)
	require.Nil(t, tr.Outstanding())
}

func TestTrackerCheckAtPingDeadline(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)
	l := &recordingListener{}

	clk.Add(time.Minute)
	tok, next := tr.Check(l, func() error { return nil })
	require.NotNil(t, tok)
	require.Equal(t, 10*time.Second, next)

	clk.Add(next)
	again, next := tr.Check(l, func() error { return nil })
	require.Nil(t, again)
	require.Equal(t, time.Minute, next)
	require.Equal(t, []error{ErrPingTimeout}, l.failure)
	require.Nil(t, tr.Outstanding())
}

func TestTrackerSendError(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)
	l := &recordingListener{}
	sendErr := errors.New("broken pipe")

	clk.Add(time.Minute)
	tok, next := tr.Check(l, func() error { return sendErr })

	require.NotNil(t, tok)
	require.Equal(t, time.Minute, next)
	require.Equal(t, []error{sendErr}, l.failure)
	require.Nil(t, tr.Outstanding())
}

func TestTrackerFail(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Minute, 10*time.Second, clk)
	l := &recordingListener{}

	tr.Fail(ErrConnectionLost)
	require.Empty(t, l.failure)

	clk.Add(time.Minute)
	tr.Check(l, func() error { return nil })
	tr.Fail(ErrConnectionLost)

	require.Equal(t, []error{ErrConnectionLost}, l.failure)
}
