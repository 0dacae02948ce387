package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alarmping"

type keepalive struct {
	armed         uint64
	armedDegraded uint64
	fired         uint64
	dropped       uint64
	checks        uint64
	noToken       uint64
	success       uint64
	failure       uint64
}

type wakeLocks struct {
	acquired  uint64
	released  uint64
	degraded  uint64
	heldNanos uint64
}

var _ Keepalive = (*keepalive)(nil)
var _ WakeLocks = (*wakeLocks)(nil)

type impl struct {
	ka keepalive
	wl wakeLocks

	descs struct {
		armed    *prometheus.Desc
		fired    *prometheus.Desc
		dropped  *prometheus.Desc
		checks   *prometheus.Desc
		results  *prometheus.Desc
		leases   *prometheus.Desc
		held     *prometheus.Desc
		heldTime *prometheus.Desc
	}
}

var _ IFace = (*impl)(nil)

// New allocate metrics. Result is a prometheus.Collector ready to be registered
func New() IFace {
	im := &impl{}

	im.descs.armed = prometheus.NewDesc(namespace+"_timer_armed_total",
		"Timers armed by the keepalive scheduler.", []string{"degraded"}, nil)
	im.descs.fired = prometheus.NewDesc(namespace+"_timer_fired_total",
		"Timer fired events handled.", nil, nil)
	im.descs.dropped = prometheus.NewDesc(namespace+"_timer_dropped_total",
		"Timer fired events dropped on dispatch queue overflow.", nil, nil)
	im.descs.checks = prometheus.NewDesc(namespace+"_activity_checks_total",
		"Activity checks requested from the connection layer.", nil, nil)
	im.descs.results = prometheus.NewDesc(namespace+"_activity_results_total",
		"Outcome of activity checks.", []string{"result"}, nil)
	im.descs.leases = prometheus.NewDesc(namespace+"_wake_leases_total",
		"Wake lease lifecycle events.", []string{"event"}, nil)
	im.descs.held = prometheus.NewDesc(namespace+"_wake_leases_held",
		"Wake leases currently held.", nil, nil)
	im.descs.heldTime = prometheus.NewDesc(namespace+"_wake_held_seconds_total",
		"Total time wake leases have been held.", nil, nil)

	return im
}

func (im *impl) Keepalive() Keepalive {
	return &im.ka
}

func (im *impl) WakeLocks() WakeLocks {
	return &im.wl
}

func (im *impl) Snapshot() Stats {
	s := Stats{}

	// subsets first so derived differences never underflow
	s.ArmedDegraded = atomic.LoadUint64(&im.ka.armedDegraded)
	s.Armed = atomic.LoadUint64(&im.ka.armed)
	s.Fired = atomic.LoadUint64(&im.ka.fired)
	s.Dropped = atomic.LoadUint64(&im.ka.dropped)
	s.Checks = atomic.LoadUint64(&im.ka.checks)
	s.NoToken = atomic.LoadUint64(&im.ka.noToken)
	s.Success = atomic.LoadUint64(&im.ka.success)
	s.Failure = atomic.LoadUint64(&im.ka.failure)
	s.Released = atomic.LoadUint64(&im.wl.released)
	s.Acquired = atomic.LoadUint64(&im.wl.acquired)
	s.Degraded = atomic.LoadUint64(&im.wl.degraded)
	s.HeldNanos = atomic.LoadUint64(&im.wl.heldNanos)

	return s
}

func (im *impl) Describe(ch chan<- *prometheus.Desc) {
	ch <- im.descs.armed
	ch <- im.descs.fired
	ch <- im.descs.dropped
	ch <- im.descs.checks
	ch <- im.descs.results
	ch <- im.descs.leases
	ch <- im.descs.held
	ch <- im.descs.heldTime
}

func (im *impl) Collect(ch chan<- prometheus.Metric) {
	s := im.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(im.descs.armed, s.Armed-s.ArmedDegraded, "false")
	counter(im.descs.armed, s.ArmedDegraded, "true")
	counter(im.descs.fired, s.Fired)
	counter(im.descs.dropped, s.Dropped)
	counter(im.descs.checks, s.Checks)
	counter(im.descs.results, s.NoToken, "no_token")
	counter(im.descs.results, s.Success, "success")
	counter(im.descs.results, s.Failure, "failure")
	counter(im.descs.leases, s.Acquired, "acquired")
	counter(im.descs.leases, s.Released, "released")
	counter(im.descs.leases, s.Degraded, "degraded")

	ch <- prometheus.MustNewConstMetric(im.descs.held, prometheus.GaugeValue, float64(s.Acquired-s.Released))
	ch <- prometheus.MustNewConstMetric(im.descs.heldTime, prometheus.CounterValue, time.Duration(s.HeldNanos).Seconds())
}

func (t *keepalive) OnArmed(degraded bool) {
	atomic.AddUint64(&t.armed, 1)
	if degraded {
		atomic.AddUint64(&t.armedDegraded, 1)
	}
}

func (t *keepalive) OnFired() {
	atomic.AddUint64(&t.fired, 1)
}

func (t *keepalive) OnDropped() {
	atomic.AddUint64(&t.dropped, 1)
}

func (t *keepalive) OnCheck() {
	atomic.AddUint64(&t.checks, 1)
}

func (t *keepalive) OnNoToken() {
	atomic.AddUint64(&t.noToken, 1)
}

func (t *keepalive) OnSuccess() {
	atomic.AddUint64(&t.success, 1)
}

func (t *keepalive) OnFailure() {
	atomic.AddUint64(&t.failure, 1)
}

func (t *wakeLocks) OnAcquired(string, string, time.Time) {
	atomic.AddUint64(&t.acquired, 1)
}

func (t *wakeLocks) OnReleased(_, _ string, _ time.Time, held time.Duration) {
	atomic.AddUint64(&t.released, 1)
	atomic.AddUint64(&t.heldNanos, uint64(held))
}

func (t *wakeLocks) OnDegraded(string, string, time.Time, error) {
	atomic.AddUint64(&t.degraded, 1)
}

// Noop metrics for components created without metrics
func Noop() Informer {
	return noop{}
}

type noop struct{}
type noopKeepalive struct{}
type noopWakeLocks struct{}

func (noop) Keepalive() Keepalive { return noopKeepalive{} }
func (noop) WakeLocks() WakeLocks { return noopWakeLocks{} }
func (noop) Snapshot() Stats      { return Stats{} }

func (noopKeepalive) OnArmed(bool) {}
func (noopKeepalive) OnFired()     {}
func (noopKeepalive) OnDropped()   {}
func (noopKeepalive) OnCheck()     {}
func (noopKeepalive) OnNoToken()   {}
func (noopKeepalive) OnSuccess()   {}
func (noopKeepalive) OnFailure()   {}

func (noopWakeLocks) OnAcquired(string, string, time.Time)                {}
func (noopWakeLocks) OnReleased(string, string, time.Time, time.Duration) {}
func (noopWakeLocks) OnDegraded(string, string, time.Time, error)         {}
