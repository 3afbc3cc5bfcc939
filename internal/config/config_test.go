package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/normanking/avatarmotion/internal/avatar3d"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "avatarmotion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Driver.FPS)
	assert.Equal(t, 0.1, cfg.Driver.MaxDelta)
	assert.Equal(t, avatar3d.DefaultTuning(), cfg.Motion)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
motion:
  whisper_cap: 0.3
  blink_min_gap: 1500ms
driver:
  fps: 30
bridge:
  addr: ":9000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.3, cfg.Motion.WhisperCap)
	assert.Equal(t, 1500*time.Millisecond, cfg.Motion.BlinkMinGap)
	assert.Equal(t, 6*time.Second, cfg.Motion.BlinkMaxGap)
	assert.Equal(t, []string{avatar3d.MouthOpen}, cfg.Motion.Followers)
	assert.Equal(t, 30, cfg.Driver.FPS)
	assert.Equal(t, ":9000", cfg.Bridge.Addr)
	assert.Equal(t, "/ws", cfg.Bridge.Path)
	assert.Equal(t, 256, cfg.Audio.FFTSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AVATARMOTION_DRIVER_FPS", "24")
	t.Setenv("AVATARMOTION_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Driver.FPS)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"rate out of range", "motion:\n  mouth_rate: 1.5\n"},
		{"fft not power of two", "audio:\n  fft_size: 300\n"},
		{"zero fps", "driver:\n  fps: 0\n"},
		{"relative path", "bridge:\n  path: ws\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidTuningIsWrapped(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "motion:\n  whisper_cap: 2\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, avatar3d.ErrInvalidTuning)
}

func TestSaveThenLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Motion.SpeakGain = 2.5
	cfg.Rig.Model = "models/fox.glb"
	cfg.Bridge.WriteTimeout = 750 * time.Millisecond

	path := filepath.Join(t.TempDir(), "nested", "avatarmotion.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "motion:\n  whisper_cap: 0.3\n")

	changes := make(chan *Config, 8)
	cfg, err := Watch(path, func(c *Config, err error) {
		if err == nil {
			changes <- c
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Motion.WhisperCap)

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "motion:\n  whisper_cap: 0.2\n")

	require.Eventually(t, func() bool {
		select {
		case c := <-changes:
			return c.Motion.WhisperCap == 0.2
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_NeedsPath(t *testing.T) {
	_, err := Watch("", func(*Config, error) {})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
