package configuration

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	lock     sync.RWMutex
	humanLog *zap.SugaredLogger
}

var cfg config

// ConfigFile path to user provided config
// Taken from ALARMPING_CONFIG environment variable and may be overridden from command line
var ConfigFile string

// WorkDir absolute path to service working directory
var WorkDir string

func init() {
	// initialize startup logger
	logCfg := zap.NewProductionConfig()

	logCfg.DisableStacktrace = true
	logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logCfg.EncoderConfig.LevelKey = ""
	logCfg.EncoderConfig.CallerKey = ""
	logCfg.Encoding = "console"
	logCfg.EncoderConfig.EncodeTime = func(t time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(t.Format(time.RFC3339))
	}

	log, _ := logCfg.Build()

	cfg.humanLog = log.Sugar()

	WorkDir = "/var/lib/alarmping"

	ConfigFile, _ = os.LookupEnv("ALARMPING_CONFIG")

	if str, ok := os.LookupEnv("ALARMPING_WORK_DIR"); ok {
		WorkDir = str
	}

	var err error
	WorkDir, err = filepath.Abs(WorkDir)
	if err != nil {
		panic(err.Error())
	}
}

// GetLogger return production logger
func GetLogger() *zap.SugaredLogger {
	cfg.lock.RLock()
	defer cfg.lock.RUnlock()

	return cfg.humanLog
}

// GetHumanLogger return logger used at startup and by command line tools
func GetHumanLogger() *zap.SugaredLogger {
	return GetLogger()
}

var configTimeFormatMap = map[string]string{
	"ANSIC":       time.ANSIC,
	"UNIX":        time.UnixDate,
	"RubyDate":    time.RubyDate,
	"RFC822":      time.RFC822,
	"RFC822Z":     time.RFC822Z,
	"RFC850":      time.RFC850,
	"RFC1123":     time.RFC1123,
	"RFC1123Z":    time.RFC1123Z,
	"RFC3339":     time.RFC3339,
	"RFC3339Nano": time.RFC3339Nano,
}

// ConfigureLoggers rebuild loggers according to system.log section
func ConfigureLoggers(c *LogConfig) error {
	logCfg := zap.NewDevelopmentEncoderConfig()

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Console.Level)); err != nil {
		return errors.Wrapf(err, "system.log.console.level [%s]", c.Console.Level)
	}

	if c.Console.Timestamp != nil {
		if f, ok := configTimeFormatMap[c.Console.Timestamp.Format]; !ok {
			GetLogger().Warn("unsupported time format supplied by config. using RFC3339")
			c.Console.Timestamp.Format = time.RFC3339
		} else {
			c.Console.Timestamp.Format = f
		}

		format := c.Console.Timestamp.Format
		logCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format(format))
		}
	} else {
		logCfg.EncodeTime = nil
	}

	logCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logCfg.StacktraceKey = ""
	consoleEncoder := zapcore.NewConsoleEncoder(logCfg)

	// High-priority output should also go to standard error, and low-priority
	// output should also go to standard out.
	consoleDebugging := zapcore.Lock(os.Stdout)
	consoleErrors := zapcore.Lock(os.Stderr)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel && lvl >= level
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel && lvl >= level
	})

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, consoleErrors, highPriority),
		zapcore.NewCore(consoleEncoder, consoleDebugging, lowPriority))

	cfg.lock.Lock()
	cfg.humanLog = zap.New(core).Sugar()
	cfg.lock.Unlock()

	_ = GetLogger().Sync()

	return nil
}
