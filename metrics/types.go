package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Keepalive scheduler events
type Keepalive interface {
	OnArmed(degraded bool)
	OnFired()
	OnDropped()
	OnCheck()
	OnNoToken()
	OnSuccess()
	OnFailure()
}

// WakeLocks wake lease events. Signatures match wakelock.Observer
type WakeLocks interface {
	OnAcquired(tag, leaseID string, at time.Time)
	OnReleased(tag, leaseID string, at time.Time, held time.Duration)
	OnDegraded(tag, leaseID string, at time.Time, err error)
}

// Informer ...
type Informer interface {
	Keepalive() Keepalive
	WakeLocks() WakeLocks
	Snapshot() Stats
}

// IFace ...
type IFace interface {
	Informer
	prometheus.Collector
}

// Stats point-in-time copy of counters
type Stats struct {
	Armed         uint64
	ArmedDegraded uint64
	Fired         uint64
	Dropped       uint64
	Checks        uint64
	NoToken       uint64
	Success       uint64
	Failure       uint64
	Acquired      uint64
	Released      uint64
	Degraded      uint64
	HeldNanos     uint64
}
