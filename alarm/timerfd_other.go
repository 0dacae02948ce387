//go:build !linux

package alarm

import (
	"go.uber.org/zap"
)

// NewTimerFD is available on linux only
func NewTimerFD(*zap.SugaredLogger) (Service, error) {
	return nil, ErrUnsupported
}
