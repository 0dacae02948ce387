package persistence

import (
	"time"

	"go.uber.org/zap"

	"github.com/VolantMQ/alarmping/wakelock"
)

type auditObserver struct {
	a   Audit
	log *zap.SugaredLogger
}

var _ wakelock.Observer = (*auditObserver)(nil)

// NewObserver records wake lease events into audit.
// Storage errors are logged and never propagate to the lease holder
func NewObserver(a Audit, log *zap.SugaredLogger) wakelock.Observer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &auditObserver{
		a:   a,
		log: log,
	}
}

func (o *auditObserver) OnAcquired(tag, leaseID string, at time.Time) {
	o.store(&Entry{
		Operation: OpAcquire,
		Tag:       tag,
		LeaseID:   leaseID,
		At:        at,
	})
}

func (o *auditObserver) OnReleased(tag, leaseID string, at time.Time, held time.Duration) {
	o.store(&Entry{
		Operation: OpRelease,
		Tag:       tag,
		LeaseID:   leaseID,
		Held:      held,
		At:        at,
	})
}

func (o *auditObserver) OnDegraded(tag, leaseID string, at time.Time, err error) {
	e := &Entry{
		Operation: OpDegrade,
		Tag:       tag,
		LeaseID:   leaseID,
		At:        at,
	}

	if err != nil {
		e.Reason = err.Error()
	}

	o.store(e)
}

func (o *auditObserver) store(e *Entry) {
	if err := o.a.Store(e); err != nil {
		o.log.Warnw("audit store", "operation", e.Operation, "lease", e.LeaseID, "error", err)
	}
}
