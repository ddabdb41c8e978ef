package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/roverpanel/pkg/robot"
)

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 120*time.Millisecond, cfg.Panel.RepeatInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.Controller.StatusInterval())
	assert.Equal(t, 300*time.Millisecond, cfg.Controller.SensorsInterval())
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"panel": {"url": "ws://rover:5000/ws", "servo_step": 5}}`), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://rover:5000/ws", cfg.Panel.URL)
	assert.Equal(t, 5, cfg.Panel.ServoStep)
	assert.Equal(t, 120, cfg.Panel.RepeatMS)
	assert.Equal(t, ":5000", cfg.Controller.Listen)
}

func TestLoadFrom_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))

	_, err := LoadFrom(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("ROVER_URL", "ws://10.0.0.2:5000/ws")
	t.Setenv("ROVER_PASSWORD", "hunter2")
	t.Setenv("ROVER_LOG_LEVEL", "debug")
	t.Setenv("ROVER_LISTEN", "127.0.0.1:9000")
	t.Setenv("ROVER_ADMIN_PASSWORD", "s3cret")
	t.Setenv("ROVER_DB", "/tmp/rover.db")

	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"panel": {"url": "ws://file/ws"}}`), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:5000/ws", cfg.Panel.URL)
	assert.Equal(t, "hunter2", cfg.Panel.Password)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.Controller.Listen)
	assert.Equal(t, "s3cret", cfg.Controller.Password)
	assert.Equal(t, "/tmp/rover.db", cfg.Controller.DB)
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	assert.False(t, ExistsAt(path))

	cfg := Default()
	cfg.Controller.GimbalPort = "/dev/ttyUSB0"
	cfg.Controller.Calibration = robot.DefaultCalibration()
	require.NoError(t, cfg.SaveTo(path))
	assert.True(t, ExistsAt(path))

	got, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.True(t, got.Controller.IsCalibrated())
}

func TestSaveTo_BadPath(t *testing.T) {
	err := Default().SaveTo(filepath.Join(t.TempDir(), "missing", "cfg.json"))
	assert.ErrorContains(t, err, "write config")
}
