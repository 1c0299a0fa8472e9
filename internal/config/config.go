// Package config loads postlens's runtime configuration: defaults set in
// code, overridden by an optional YAML file, overridden by environment
// variables. It follows the layering demonstrated by the teacher pack's
// viper-based loader.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete postlens runtime configuration.
type Config struct {
	InstanceID string `mapstructure:"instance_id"`

	Sensor     SensorConfig     `mapstructure:"sensor"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Frames     FramesConfig     `mapstructure:"frames"`
	Control    ControlConfig    `mapstructure:"control"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`

	// PolicyPath points at the operator-editable site allowlist and
	// severity document, parsed separately with yaml.v3 (see policy.go).
	PolicyPath string `mapstructure:"policy_path"`
}

// SensorConfig configures the sensor intake server (spec §4.1, §6).
type SensorConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// CaptureConfig configures the per-post session state machine (spec §4.4).
type CaptureConfig struct {
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	CaptureInterval  time.Duration `mapstructure:"capture_interval"`
	SubmitThrottle   time.Duration `mapstructure:"submit_throttle"`
	VerdictCacheTTL  time.Duration `mapstructure:"verdict_cache_ttl"`
	BatchSize        int           `mapstructure:"batch_size"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
}

// ClassifierConfig configures the external classifier service (spec §6).
type ClassifierConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FramesConfig configures where captured JPEGs live (spec §6).
type FramesConfig struct {
	Directory string `mapstructure:"directory"`
}

// ControlConfig configures the control surface's polling cadence (spec §4.8).
type ControlConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MQTTConfig configures the optional session telemetry publisher
// (SPEC_FULL §3). Broker == "" disables telemetry entirely.
type MQTTConfig struct {
	Broker           string `mapstructure:"broker"`
	Topic            string `mapstructure:"topic"`
	ClientIDSuffix   string `mapstructure:"client_id_suffix"`
}

// HealthConfig configures the liveness/readiness/metrics HTTP server
// (SPEC_FULL §3, grounded on the teacher's internal/core/health.go).
type HealthConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DebugConfig configures the debug screenshot dump directory (spec §4.10).
type DebugConfig struct {
	Directory string `mapstructure:"directory"`
}

// Load builds a Config from defaults, an optional file at path (ignored
// if empty and not found), and environment variables under the
// POSTLENS_ prefix. API_BASE_URL is honored directly, per spec §6: when
// set, it overrides classifier.base_url from every other source.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POSTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	if override := os.Getenv("API_BASE_URL"); override != "" {
		cfg.Classifier.BaseURL = override
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance_id", "postlens-local")

	v.SetDefault("sensor.listen_addr", "127.0.0.1:8765")

	v.SetDefault("capture.settle_delay", 500*time.Millisecond)
	v.SetDefault("capture.capture_interval", time.Second)
	v.SetDefault("capture.submit_throttle", 2*time.Second)
	v.SetDefault("capture.verdict_cache_ttl", 5*time.Second)
	v.SetDefault("capture.batch_size", 4)
	v.SetDefault("capture.debounce_interval", 150*time.Millisecond)

	v.SetDefault("classifier.base_url", "http://127.0.0.1:8000")
	v.SetDefault("classifier.timeout", 10*time.Second)

	v.SetDefault("frames.directory", "./screenshots")

	v.SetDefault("control.poll_interval", 3*time.Second)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "postlens/sessions")

	v.SetDefault("health.listen_addr", "127.0.0.1:9090")

	v.SetDefault("debug.directory", "./debug")

	v.SetDefault("policy_path", "")
}
