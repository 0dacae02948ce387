package persistence

import (
	"github.com/VolantMQ/alarmping/configuration"
)

// New allocate provider for given config
// Config is either *MemConfig or *SQLiteConfig
func New(config interface{}) (Provider, error) {
	switch c := config.(type) {
	case *MemConfig:
		return NewMem(c)
	case *SQLiteConfig:
		return NewSQLite(c)
	}

	return nil, ErrUnknownProvider
}

// FromConfig translate audit section of the configuration into provider config
func FromConfig(c configuration.AuditConfig) (interface{}, error) {
	switch c.Backend {
	case "mem", "":
		return &MemConfig{MaxRows: c.MaxRows}, nil
	case "sqlite":
		return &SQLiteConfig{Path: c.Path, MaxRows: c.MaxRows}, nil
	}

	return nil, ErrUnknownProvider
}
