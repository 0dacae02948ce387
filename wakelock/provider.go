package wakelock

import (
	"runtime"
)

// NewProvider by backend name: auto, logind, caffeinate, none.
// Auto picks platform backend and falls back to none if it is not available
func NewProvider(backend string) (Provider, error) {
	switch backend {
	case "none":
		return NewNoop(), nil
	case "logind", "caffeinate":
		return newPlatform(backend)
	case "auto", "":
		p, err := newPlatform(platformBackend())
		if err != nil {
			return NewNoop(), nil
		}

		return p, nil
	default:
		return nil, ErrUnknownBackend
	}
}

func platformBackend() string {
	switch runtime.GOOS {
	case "linux":
		return "logind"
	case "darwin":
		return "caffeinate"
	default:
		return "none"
	}
}
