package persistence

import (
	"sync"
)

type dbStatus struct {
	done chan struct{}
}

func (s *dbStatus) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type memAudit struct {
	status  *dbStatus
	maxRows int

	lock    sync.RWMutex
	lastID  int64
	entries []Entry
}

type memImpl struct {
	status dbStatus
	once   sync.Once
	a      memAudit
}

var _ Provider = (*memImpl)(nil)
var _ Audit = (*memAudit)(nil)

// NewMem allocate new persistence provider of in-memory type
func NewMem(config *MemConfig) (Provider, error) {
	if config == nil {
		return nil, ErrInvalidArgs
	}

	pl := &memImpl{}

	pl.status.done = make(chan struct{})

	pl.a = memAudit{
		status:  &pl.status,
		maxRows: config.MaxRows,
	}

	return pl, nil
}

// Audit
func (p *memImpl) Audit() (Audit, error) {
	if p.status.closed() {
		return nil, ErrNotOpen
	}

	return &p.a, nil
}

// Shutdown provider
func (p *memImpl) Shutdown() error {
	var err error = ErrNotOpen

	p.once.Do(func() {
		close(p.status.done)
		err = nil
	})

	return err
}

func (a *memAudit) Store(e *Entry) error {
	if e == nil {
		return ErrInvalidArgs
	}

	if a.status.closed() {
		return ErrNotOpen
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.lastID++
	e.ID = a.lastID

	a.entries = append(a.entries, *e)

	if a.maxRows > 0 && len(a.entries) > a.maxRows {
		a.entries = append([]Entry(nil), a.entries[len(a.entries)-a.maxRows:]...)
	}

	return nil
}

func (a *memAudit) List(limit int) ([]*Entry, error) {
	if a.status.closed() {
		return nil, ErrNotOpen
	}

	a.lock.RLock()
	defer a.lock.RUnlock()

	count := len(a.entries)
	if limit > 0 && limit < count {
		count = limit
	}

	res := make([]*Entry, 0, count)
	for i := len(a.entries) - 1; i >= 0 && len(res) < count; i-- {
		e := a.entries[i]
		res = append(res, &e)
	}

	return res, nil
}

func (a *memAudit) Wipe() error {
	if a.status.closed() {
		return ErrNotOpen
	}

	a.lock.Lock()
	a.entries = nil
	a.lock.Unlock()

	return nil
}
