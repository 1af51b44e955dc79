package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/punchcounter/internal/motion"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.DBPath, "db_path is derived during validation")
	require.NoError(t, Validate(cfg))

	assert.Equal(t, filepath.Join(cfg.DataDir, "punchcounter.db"), cfg.DBPath)

	assert.Equal(t, 5, cfg.TargetFPS)
	assert.Equal(t, motion.DefaultThreshold, cfg.Motion.Threshold)
	assert.Equal(t, motion.DefaultMinGap, cfg.Motion.MinGap)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
data_dir: /tmp/punches
target_fps: 10
parallelism: 4
save_frames: true
motion:
  threshold: 0.035
  min_gap: 3
mediapipe:
  python: /opt/venv/bin/python3
server:
  addr: ":9090"
mqtt:
  broker: localhost:1883
  topic: gym/punches
  qos: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/punches", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/punches", "punchcounter.db"), cfg.DBPath, "db_path derived from data_dir")
	assert.Equal(t, 10, cfg.TargetFPS)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.True(t, cfg.SaveFrames)
	assert.Equal(t, 0.035, cfg.Motion.Threshold)
	assert.Equal(t, 3, cfg.Motion.MinGap)
	assert.Equal(t, "/opt/venv/bin/python3", cfg.MediaPipe.Python)
	assert.Equal(t, 1, cfg.MediaPipe.ModelComplexity, "unset fields keep defaults")
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, "gym/punches", cfg.MQTT.Topic)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, "/tmp/punches/results", cfg.ResultsDir())
}

func TestLoad_DBPath(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "follows data_dir", yaml: "data_dir: /srv/gym\n", want: "/srv/gym/punchcounter.db"},
		{name: "explicit db_path wins", yaml: "data_dir: /srv/gym\ndb_path: /var/lib/punches.db\n", want: "/var/lib/punches.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, "config.yaml", tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.DBPath)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "motion: [unclosed"},
		{name: "zero threshold", content: "motion:\n  threshold: 0\n"},
		{name: "negative min_gap", content: "motion:\n  min_gap: -1\n"},
		{name: "zero fps", content: "target_fps: 0\n"},
		{name: "bad complexity", content: "mediapipe:\n  model_complexity: 3\n"},
		{name: "bad qos", content: "mqtt:\n  qos: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PUNCHCOUNT_THRESHOLD", "0.05")
	t.Setenv("PUNCHCOUNT_MIN_GAP", "8")
	t.Setenv("PUNCHCOUNT_TARGET_FPS", "6")
	t.Setenv("PUNCHCOUNT_SAVE_FRAMES", "true")
	t.Setenv("PUNCHCOUNT_MQTT_BROKER", "broker:1883")
	t.Setenv("PUNCHCOUNT_MQTT_QOS", "2")

	path := writeFile(t, "config.yaml", "motion:\n  threshold: 0.01\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.Motion.Threshold, "environment wins over file")
	assert.Equal(t, 8, cfg.Motion.MinGap)
	assert.Equal(t, 6, cfg.TargetFPS)
	assert.True(t, cfg.SaveFrames)
	assert.Equal(t, "broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Setenv("PUNCHCOUNT_MIN_GAP", "five")

	err := ApplyEnv(Default())
	assert.ErrorContains(t, err, "PUNCHCOUNT_MIN_GAP")
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "PUNCHCOUNT_TEST_DOTENV=loaded\n")
	t.Setenv("PUNCHCOUNT_TEST_DOTENV", "")
	os.Unsetenv("PUNCHCOUNT_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "loaded", os.Getenv("PUNCHCOUNT_TEST_DOTENV"))
}
