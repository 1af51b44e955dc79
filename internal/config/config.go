// Package config loads punch counter settings from YAML, .env files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/punchcounter/internal/motion"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PUNCHCOUNT_"

// Config is the complete punch counter configuration
type Config struct {
	DataDir     string          `yaml:"data_dir"`
	DBPath      string          `yaml:"db_path"`
	TargetFPS   int             `yaml:"target_fps"`  // frames per second kept for pose estimation
	Parallelism int             `yaml:"parallelism"` // concurrent videos in batch mode
	SaveFrames  bool            `yaml:"save_frames"` // dump sampled frames as JPEG
	Motion      motion.Config   `yaml:"motion"`
	MediaPipe   MediaPipeConfig `yaml:"mediapipe"`
	Server      ServerConfig    `yaml:"server"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
}

// MediaPipeConfig locates the pose estimation service
type MediaPipeConfig struct {
	Python          string  `yaml:"python"`
	Script          string  `yaml:"script"`
	ModelComplexity int     `yaml:"model_complexity"` // 0, 1 or 2
	MinConfidence   float64 `yaml:"min_confidence"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// MQTTConfig contains report publishing settings. An empty broker disables publishing.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Default returns the configuration used when no file is given. DBPath is
// left empty so Validate derives it from whatever DataDir ends up being.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir:     filepath.Join(home, ".punchcounter"),
		TargetFPS:   5,
		Parallelism: 2,
		Motion:      motion.DefaultConfig(),
		MediaPipe: MediaPipeConfig{
			ModelComplexity: 1,
			MinConfidence:   0.5,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		MQTT: MQTTConfig{
			ClientID: "punchcounter",
			Topic:    "punchcounter/results",
			QoS:      1,
		},
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; existing variables are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with PUNCHCOUNT_* environment variables.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"DATA_DIR":       &cfg.DataDir,
		"DB_PATH":        &cfg.DBPath,
		"PYTHON":         &cfg.MediaPipe.Python,
		"POSE_SCRIPT":    &cfg.MediaPipe.Script,
		"SERVER_ADDR":    &cfg.Server.Addr,
		"STATIC_DIR":     &cfg.Server.StaticDir,
		"MQTT_BROKER":    &cfg.MQTT.Broker,
		"MQTT_CLIENT_ID": &cfg.MQTT.ClientID,
		"MQTT_TOPIC":     &cfg.MQTT.Topic,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TARGET_FPS":  &cfg.TargetFPS,
		"PARALLELISM": &cfg.Parallelism,
		"MIN_GAP":     &cfg.Motion.MinGap,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sTHRESHOLD: %w", EnvPrefix, err)
		}
		cfg.Motion.Threshold = f
	}

	if v, ok := lookup("SAVE_FRAMES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSAVE_FRAMES: %w", EnvPrefix, err)
		}
		cfg.SaveFrames = b
	}

	if v, ok := lookup("MQTT_QOS"); ok {
		q, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%sMQTT_QOS: %w", EnvPrefix, err)
		}
		cfg.MQTT.QoS = byte(q)
	}

	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
