//go:build linux

package wakelock

func newPlatform(backend string) (Provider, error) {
	switch backend {
	case "logind":
		return NewLogind()
	case "none":
		return NewNoop(), nil
	default:
		return nil, ErrUnsupported
	}
}
