//go:build !linux && !darwin

package wakelock

func newPlatform(backend string) (Provider, error) {
	if backend == "none" {
		return NewNoop(), nil
	}

	return nil, ErrUnsupported
}
