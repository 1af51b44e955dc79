package config

import (
	"fmt"
	"path/filepath"
)

// Validate checks the configuration and fills derived defaults
func Validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "punchcounter.db")
	}

	if cfg.TargetFPS <= 0 {
		return fmt.Errorf("target_fps must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	if err := cfg.Motion.Validate(); err != nil {
		return fmt.Errorf("motion: %w", err)
	}

	if c := cfg.MediaPipe.ModelComplexity; c < 0 || c > 2 {
		return fmt.Errorf("mediapipe.model_complexity must be 0, 1 or 2, got %d", c)
	}
	if c := cfg.MediaPipe.MinConfidence; c < 0 || c > 1 {
		return fmt.Errorf("mediapipe.min_confidence must be within [0, 1], got %v", c)
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.Enabled() {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "punchcounter/results"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "punchcounter"
		}
	}

	return nil
}

// ResultsDir is where results documents are written.
func (c *Config) ResultsDir() string {
	return filepath.Join(c.DataDir, "results")
}

// ProcessedDir holds the per-run frame and pose folders.
func (c *Config) ProcessedDir() string {
	return filepath.Join(c.DataDir, "processed")
}
