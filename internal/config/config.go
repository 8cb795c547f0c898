// Package config loads process configuration from the environment (and
// an optional YAML file), following the shape of cxumol-FFwebAPI's
// config package: viper for sourcing, mapstructure decode hooks for
// human-friendly durations, and explicit defaults for everything
// optional.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds every tunable the service reads at startup. The three
// fields with no default (JSON_DB_STORAGE, TASK_OUTPUT_PATH,
// ITS_API_KEY) are required and checked by validate; everything else,
// LISTEN_PORT included (8080), carries a default, matching the
// teacher's vp.SetDefault convention.
type Config struct {
	// spec.md §6 "Environment"; all but ListenPort are required.
	JSONDBStorage string `mapstructure:"JSON_DB_STORAGE"`
	TaskOutputPath string `mapstructure:"TASK_OUTPUT_PATH"`
	ITSAPIKey      string `mapstructure:"ITS_API_KEY"`
	ListenPort     string `mapstructure:"LISTEN_PORT"`

	// Optional, ambient/domain knobs (SPEC_FULL.md §6 expansion).
	FFBin              string        `mapstructure:"FF_BIN"`
	RecordPollInterval time.Duration `mapstructure:"RECORD_POLL_INTERVAL"`
	ITSTimeout         time.Duration `mapstructure:"ITS_TIMEOUT"`
	TrackThrottleCPU   float64       `mapstructure:"TRACK_THROTTLE_CPU"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
}

func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

// Load reads configuration from the environment; a key the environment
// leaves unset falls back to an optional YAML file named
// recanalyzer_config.yaml in the working directory or
// /etc/road-cctv-recanalyzer/, and then to the built-in default.
func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("RECORD_POLL_INTERVAL", "500ms")
	vp.SetDefault("ITS_TIMEOUT", "5s")
	vp.SetDefault("TRACK_THROTTLE_CPU", 10.0)
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LISTEN_PORT", "8080")

	vp.SetConfigName("recanalyzer_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/road-cctv-recanalyzer/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// spec.md §6 names these env vars literally, without a service
	// prefix, unlike the teacher's FFWEBAPI_ prefix convention.
	for _, key := range []string{
		"JSON_DB_STORAGE", "TASK_OUTPUT_PATH", "ITS_API_KEY", "LISTEN_PORT",
		"FF_BIN", "RECORD_POLL_INTERVAL", "ITS_TIMEOUT", "TRACK_THROTTLE_CPU", "LOG_LEVEL",
	} {
		if err := vp.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.JSONDBStorage == "" {
		missing = append(missing, "JSON_DB_STORAGE")
	}
	if c.TaskOutputPath == "" {
		missing = append(missing, "TASK_OUTPUT_PATH")
	}
	if c.ITSAPIKey == "" {
		missing = append(missing, "ITS_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
