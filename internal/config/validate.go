package config

import (
	"fmt"
	"time"
)

// Validate checks the configuration for correctness and back-fills
// defaults that zero-valued fields should never keep, mirroring the
// teacher's internal/config/validator.go.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}

	if cfg.Sensor.ListenAddr == "" {
		return fmt.Errorf("sensor.listen_addr is required")
	}

	if cfg.Capture.BatchSize < 1 || cfg.Capture.BatchSize > 10 {
		return fmt.Errorf("capture.batch_size must be in [1,10], got %d", cfg.Capture.BatchSize)
	}
	if cfg.Capture.SettleDelay <= 0 {
		return fmt.Errorf("capture.settle_delay must be > 0")
	}
	if cfg.Capture.CaptureInterval <= 0 {
		return fmt.Errorf("capture.capture_interval must be > 0")
	}
	if cfg.Capture.VerdictCacheTTL <= 0 {
		return fmt.Errorf("capture.verdict_cache_ttl must be > 0")
	}

	if cfg.Classifier.BaseURL == "" {
		return fmt.Errorf("classifier.base_url is required")
	}
	if cfg.Classifier.Timeout <= 0 {
		cfg.Classifier.Timeout = 10 * time.Second
	}

	if cfg.Frames.Directory == "" {
		return fmt.Errorf("frames.directory is required")
	}

	if cfg.Control.PollInterval <= 0 {
		return fmt.Errorf("control.poll_interval must be > 0")
	}

	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "postlens/sessions"
	}

	if cfg.Health.ListenAddr == "" {
		return fmt.Errorf("health.listen_addr is required")
	}

	if cfg.Debug.Directory == "" {
		cfg.Debug.Directory = "./debug"
	}

	return nil
}
