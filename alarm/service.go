package alarm

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// NewService by backend name: auto, timerfd, runtime.
// Auto prefers timerfd and falls back to runtime timers
func NewService(backend string, log *zap.SugaredLogger) (Service, error) {
	switch backend {
	case "runtime":
		return NewRuntime(clock.New()), nil
	case "timerfd":
		return NewTimerFD(log)
	case "auto", "":
		s, err := NewTimerFD(log)
		if err != nil {
			if log != nil {
				log.Infow("timerfd unavailable, using runtime timers", "error", err)
			}
			return NewRuntime(clock.New()), nil
		}

		return s, nil
	default:
		return nil, ErrUnknownBackend
	}
}
