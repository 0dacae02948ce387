package wakelock

import (
	"time"
)

type observers []Observer

// Observers fan out lease events to every non-nil observer in order
func Observers(list ...Observer) Observer {
	var res observers

	for _, o := range list {
		if o != nil {
			res = append(res, o)
		}
	}

	return res
}

func (o observers) OnAcquired(tag, leaseID string, at time.Time) {
	for _, ob := range o {
		ob.OnAcquired(tag, leaseID, at)
	}
}

func (o observers) OnReleased(tag, leaseID string, at time.Time, held time.Duration) {
	for _, ob := range o {
		ob.OnReleased(tag, leaseID, at, held)
	}
}

func (o observers) OnDegraded(tag, leaseID string, at time.Time, err error) {
	for _, ob := range o {
		ob.OnDegraded(tag, leaseID, at, err)
	}
}
