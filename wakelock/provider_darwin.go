//go:build darwin

package wakelock

func newPlatform(backend string) (Provider, error) {
	switch backend {
	case "caffeinate":
		return NewCaffeinate()
	case "none":
		return NewNoop(), nil
	default:
		return nil, ErrUnsupported
	}
}
