package configuration

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfig Load minimum working configuration to allow
// service start without user provided one
func DefaultConfig() *Config {
	c := Config{}
	if err := yaml.Unmarshal(defaultConfig, &c); err != nil {
		panic(err.Error())
	}

	return &c
}

// ReadConfig read service configuration
// Empty path falls back to ConfigFile
func ReadConfig(path string) (*Config, error) {
	log := GetHumanLogger()
	log.Info("loading config")

	if len(path) == 0 {
		path = ConfigFile
	}

	c := DefaultConfig()

	if len(path) == 0 {
		log.Info("no config file provided. use --config option or ALARMPING_CONFIG environment variable to provide own")
		log.Debug("default config: \n", string(defaultConfig))
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config [%s]", path)
		}

		if err = yaml.Unmarshal(data, c); err != nil {
			return nil, errors.Wrapf(err, "config [%s]", path)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}
