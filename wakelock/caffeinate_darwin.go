//go:build darwin

package wakelock

import (
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

// NewCaffeinate provider spawning caffeinate bound to this process pid.
// Crash of the host process terminates inhibitor automatically
func NewCaffeinate() (Provider, error) {
	if _, err := exec.LookPath("caffeinate"); err != nil {
		return nil, errors.Wrap(ErrUnsupported, err.Error())
	}

	return &caffeinate{
		pid:     os.Getpid(),
		execCmd: exec.Command,
	}, nil
}

type caffeinate struct {
	pid     int
	execCmd func(name string, args ...string) *exec.Cmd
}

type caffeinateResource struct {
	p    *caffeinate
	lock sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *caffeinate) NewResource(string) (Resource, error) {
	return &caffeinateResource{p: p}, nil
}

func (p *caffeinate) Close() error {
	return nil
}

func (r *caffeinateResource) Acquire() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.cmd != nil {
		return nil
	}

	// idle-only inhibit
	cmd := r.p.execCmd("caffeinate", "-i", "-w", strconv.Itoa(r.p.pid))
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "caffeinate: start")
	}

	r.cmd = cmd
	r.done = make(chan struct{})

	go func(cmd *exec.Cmd, done chan struct{}) {
		_ = cmd.Wait()
		close(done)
	}(cmd, r.done)

	return nil
}

func (r *caffeinateResource) Release() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.cmd == nil {
		return nil
	}

	err := r.cmd.Process.Signal(syscall.SIGTERM)
	<-r.done
	r.cmd = nil

	if err != nil {
		return errors.Wrap(err, "caffeinate: terminate")
	}

	return nil
}
