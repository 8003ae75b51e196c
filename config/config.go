// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"tripsense/logging"
	"tripsense/ml"
)

// EnvPath overrides the default config location.
const EnvPath = "TRIPSENSE_CONFIG"

type Config struct {
	HTTP struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log      logging.Config `yaml:"log"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Artifacts struct {
		Region string `yaml:"region"`
	} `yaml:"artifacts"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
	Activity   ActivityConfig   `yaml:"activity"`
}

type TrajectoryConfig struct {
	Enabled    bool           `yaml:"enabled"`
	WindowSize int            `yaml:"window_size"`
	Scaler     string         `yaml:"scaler"`
	Labels     string         `yaml:"labels"`
	Model      ml.ModelConfig `yaml:"model"`
	CacheSize  int            `yaml:"cache_size"`
}

type ActivityConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Params       string         `yaml:"params"`
	Scaler       string         `yaml:"scaler"`
	Labels       string         `yaml:"labels"`
	LabelEncoder string         `yaml:"label_encoder"`
	Model        ml.ModelConfig `yaml:"model"`
	CacheSize    int            `yaml:"cache_size"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = 8000
	cfg.HTTP.Timeout = 30 * time.Second
	cfg.HTTP.AllowedOrigins = []string{"*"}
	cfg.HTTP.MaxBodyBytes = 1 << 20
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	cfg.Trajectory.WindowSize = 10
	return cfg
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path picks the config file: flag value, then $TRIPSENSE_CONFIG, then config.yaml.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return "config.yaml"
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if !c.Trajectory.Enabled && !c.Activity.Enabled {
		errs = append(errs, errors.New("no pipeline enabled"))
	}
	if c.Trajectory.Enabled {
		if c.Trajectory.WindowSize <= 0 {
			errs = append(errs, errors.New("trajectory.window_size must be positive"))
		}
		if c.Trajectory.Scaler == "" {
			errs = append(errs, errors.New("trajectory.scaler is required"))
		}
		if c.Trajectory.Model.Type == "" {
			errs = append(errs, errors.New("trajectory.model.type is required"))
		}
	}
	if c.Activity.Enabled {
		if c.Activity.Params == "" {
			errs = append(errs, errors.New("activity.params is required"))
		}
		if c.Activity.Scaler == "" {
			errs = append(errs, errors.New("activity.scaler is required"))
		}
		if c.Activity.Model.Type == "" {
			errs = append(errs, errors.New("activity.model.type is required"))
		}
	}
	switch c.Database.Driver {
	case "", "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ml.ErrConfiguration, err)
	}
	return nil
}
