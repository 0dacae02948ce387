//go:build linux

package wakelock

import (
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInhibit   = "org.freedesktop.login1.Manager.Inhibit"
	inhibitWhat     = "sleep"
	inhibitWhy      = "keepalive ping in progress"
	inhibitModeLock = "block"
)

// NewLogind provider taking systemd-logind sleep inhibitor locks over system bus.
// Every resource holds its own inhibitor file descriptor, closing it releases the lock
func NewLogind() (Provider, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "logind: connect system bus")
	}

	return &logind{
		conn: conn,
		obj:  conn.Object(logindDest, logindPath),
	}, nil
}

type logind struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

type logindResource struct {
	p    *logind
	tag  string
	lock sync.Mutex
	fd   *os.File
}

func (p *logind) NewResource(tag string) (Resource, error) {
	return &logindResource{
		p:   p,
		tag: tag,
	}, nil
}

func (p *logind) Close() error {
	return p.conn.Close()
}

func (r *logindResource) Acquire() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.fd != nil {
		return nil
	}

	var fd dbus.UnixFD

	call := r.p.obj.Call(logindInhibit, 0, inhibitWhat, r.tag, inhibitWhy, inhibitModeLock)
	if err := call.Store(&fd); err != nil {
		return errors.Wrapf(err, "logind: inhibit [%s]", r.tag)
	}

	r.fd = os.NewFile(uintptr(fd), r.tag)

	return nil
}

func (r *logindResource) Release() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.fd == nil {
		return nil
	}

	err := r.fd.Close()
	r.fd = nil

	return err
}
