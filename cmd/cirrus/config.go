package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// Config is the harness configuration. Values come from the defaults below,
// then an optional YAML file, then CIRRUS_* environment variables, then
// command-line flags.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// StateDir holds the Badger accounts database. Empty runs in memory.
	StateDir string `mapstructure:"state_dir"`

	ComputeBudget uint64 `mapstructure:"compute_budget"`

	// Capture, when set, is the archive every executed call is recorded to.
	Capture string `mapstructure:"capture"`
}

var defaultConfig = Config{
	LogLevel:      "info",
	LogFormat:     "text",
	StateDir:      "cirrus-state",
	ComputeBudget: syscall.CUDefault,
}

func init() {
	_ = viper.BindEnv("log_level", "CIRRUS_LOG_LEVEL")
	_ = viper.BindEnv("log_format", "CIRRUS_LOG_FORMAT")
	_ = viper.BindEnv("state_dir", "CIRRUS_STATE_DIR")
	_ = viper.BindEnv("compute_budget", "CIRRUS_COMPUTE_BUDGET")
	_ = viper.BindEnv("capture", "CIRRUS_CAPTURE")
}

// loadConfig reads path if it exists and overlays the environment.
func loadConfig(path string) (Config, error) {
	// viper only reports ConfigFileNotFoundError while searching, not for an
	// explicit path, so check for the file first.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				return Config{}, errors.Wrapf(err, "read config %s", path)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "stat config %s", path)
		}
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if err := checkBudget(config.ComputeBudget); err != nil {
		return Config{}, err
	}
	return config, nil
}

// checkBudget rejects budgets the compute meter would not honour.
func checkBudget(budget uint64) error {
	if budget == 0 {
		return errors.New("compute_budget must be positive")
	}
	if budget > syscall.CUMax {
		return errors.Errorf("compute_budget %d exceeds the %d limit", budget, syscall.CUMax)
	}
	return nil
}

func configureLogger(config Config) error {
	switch strings.ToLower(config.LogFormat) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("unknown log format %q", config.LogFormat)
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", config.LogLevel)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	return nil
}
