package configuration

import (
	"time"

	"github.com/pkg/errors"
)

// TimestampConfig entry in system.log.console.timestamp
type TimestampConfig struct {
	Format string `yaml:"format,omitempty"`
}

// ConsoleLogConfig entry in system.log.console
type ConsoleLogConfig struct {
	Level     string           `yaml:"level,omitempty"`
	Timestamp *TimestampConfig `yaml:"timestamp,omitempty"`
}

// LogConfig entry in system.log
type LogConfig struct {
	Console ConsoleLogConfig `yaml:"console,omitempty"`
}

// HTTPConfig entry in system.http
type HTTPConfig struct {
	DefaultPort string `yaml:"defaultPort,omitempty"`
}

// SystemConfig entry in system
type SystemConfig struct {
	Log  LogConfig  `yaml:"log,omitempty"`
	HTTP HTTPConfig `yaml:"http,omitempty"`
}

// ClientConfig connection settings of the client kept alive by the pinger
type ClientConfig struct {
	ID                 string `yaml:"id,omitempty"`
	URL                string `yaml:"url,omitempty"`
	KeepAlive          int    `yaml:"keepAlive,omitempty"`
	PingTimeout        int    `yaml:"pingTimeout,omitempty"`
	CleanSession       bool   `yaml:"cleanSession,omitempty"`
	AutomaticReconnect bool   `yaml:"automaticReconnect,omitempty"`
}

// KeepAlivePeriod keepAlive in duration units
func (c *ClientConfig) KeepAlivePeriod() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// PingTimeoutPeriod pingTimeout in duration units
func (c *ClientConfig) PingTimeoutPeriod() time.Duration {
	return time.Duration(c.PingTimeout) * time.Second
}

// AlarmConfig entry in alarm
type AlarmConfig struct {
	Backend string `yaml:"backend,omitempty"`
}

// WakeLockConfig entry in wakelock
type WakeLockConfig struct {
	Backend string `yaml:"backend,omitempty"`
}

// AuditConfig entry in audit
type AuditConfig struct {
	Backend string `yaml:"backend,omitempty"`
	Path    string `yaml:"path,omitempty"`
	MaxRows int    `yaml:"maxRows,omitempty"`
}

// Config system-wide config
type Config struct {
	Version  string         `yaml:"version,omitempty"`
	System   SystemConfig   `yaml:"system,omitempty"`
	Client   ClientConfig   `yaml:"client,omitempty"`
	Alarm    AlarmConfig    `yaml:"alarm,omitempty"`
	WakeLock WakeLockConfig `yaml:"wakelock,omitempty"`
	Audit    AuditConfig    `yaml:"audit,omitempty"`
}

var (
	alarmBackends    = []string{"auto", "timerfd", "runtime"}
	wakeLockBackends = []string{"auto", "logind", "caffeinate", "none"}
	auditBackends    = []string{"mem", "sqlite"}
)

func oneOf(val string, list []string) bool {
	for _, l := range list {
		if val == l {
			return true
		}
	}

	return false
}

// Validate config values
func (c *Config) Validate() error {
	if len(c.Client.ID) == 0 {
		return errors.New("client.id cannot be empty")
	}

	if c.Client.KeepAlive <= 0 {
		return errors.Errorf("client.keepAlive must be positive, got %d", c.Client.KeepAlive)
	}

	if c.Client.PingTimeout <= 0 {
		return errors.Errorf("client.pingTimeout must be positive, got %d", c.Client.PingTimeout)
	}

	if !oneOf(c.Alarm.Backend, alarmBackends) {
		return errors.Errorf("alarm.backend: unknown backend [%s]", c.Alarm.Backend)
	}

	if !oneOf(c.WakeLock.Backend, wakeLockBackends) {
		return errors.Errorf("wakelock.backend: unknown backend [%s]", c.WakeLock.Backend)
	}

	if !oneOf(c.Audit.Backend, auditBackends) {
		return errors.Errorf("audit.backend: unknown backend [%s]", c.Audit.Backend)
	}

	if c.Audit.Backend == "sqlite" && len(c.Audit.Path) == 0 {
		return errors.New("audit.path cannot be empty for sqlite backend")
	}

	return nil
}
