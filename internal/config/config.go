// Package config provides configuration management for avatarmotion
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/normanking/avatarmotion/internal/avatar3d"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g. AVATARMOTION_DRIVER_FPS.
const EnvPrefix = "AVATARMOTION"

var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	Motion avatar3d.Tuning `mapstructure:"motion" yaml:"motion"`
	Rig    RigConfig       `mapstructure:"rig" yaml:"rig"`
	Audio  AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Driver DriverConfig    `mapstructure:"driver" yaml:"driver"`
	Bridge BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	Log    LogConfig       `mapstructure:"log" yaml:"log"`
}

// RigConfig selects the model whose channels are driven
type RigConfig struct {
	Model string `mapstructure:"model" yaml:"model"` // glTF/GLB path; empty uses the built-in rig
	Seed  int64  `mapstructure:"seed" yaml:"seed"`   // blink RNG seed; 0 seeds from time
}

// AudioConfig configures the frequency analysers
type AudioConfig struct {
	SampleRate  int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	FFTSize     int           `mapstructure:"fft_size" yaml:"fft_size"`
	MinDecibels float64       `mapstructure:"min_decibels" yaml:"min_decibels"`
	MaxDecibels float64       `mapstructure:"max_decibels" yaml:"max_decibels"`
	Smoothing   float64       `mapstructure:"smoothing" yaml:"smoothing"`
	StaleAfter  time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// DriverConfig configures the frame loop
type DriverConfig struct {
	FPS      int     `mapstructure:"fps" yaml:"fps"`
	MaxDelta float64 `mapstructure:"max_delta" yaml:"max_delta"` // seconds
}

// BridgeConfig configures the websocket bridge
type BridgeConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	Path         string        `mapstructure:"path" yaml:"path"`
	PoseEvery    int           `mapstructure:"pose_every" yaml:"pose_every"` // send a pose every N frames
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Dir   string `mapstructure:"dir" yaml:"dir"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Motion: avatar3d.DefaultTuning(),
		Audio: AudioConfig{
			SampleRate:  24000,
			FFTSize:     256,
			MinDecibels: -100,
			MaxDecibels: -30,
			Smoothing:   0.8,
			StaleAfter:  250 * time.Millisecond,
		},
		Driver: DriverConfig{
			FPS:      60,
			MaxDelta: 0.1,
		},
		Bridge: BridgeConfig{
			Addr:         "127.0.0.1:8765",
			Path:         "/ws",
			PoseEvery:    1,
			WriteTimeout: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Motion.Validate(); err != nil {
		return err
	}
	if n := c.Audio.FFTSize; n < 32 || n&(n-1) != 0 {
		return fmt.Errorf("%w: audio.fft_size must be a power of two >= 32, got %d", ErrInvalidConfig, n)
	}
	if c.Audio.MaxDecibels <= c.Audio.MinDecibels {
		return fmt.Errorf("%w: audio decibel range [%v,%v]", ErrInvalidConfig, c.Audio.MinDecibels, c.Audio.MaxDecibels)
	}
	if c.Audio.Smoothing < 0 || c.Audio.Smoothing >= 1 {
		return fmt.Errorf("%w: audio.smoothing must be in [0,1)", ErrInvalidConfig)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: audio.sample_rate must be positive", ErrInvalidConfig)
	}
	if c.Driver.FPS <= 0 || c.Driver.FPS > 240 {
		return fmt.Errorf("%w: driver.fps must be in [1,240], got %d", ErrInvalidConfig, c.Driver.FPS)
	}
	if c.Driver.MaxDelta <= 0 {
		return fmt.Errorf("%w: driver.max_delta must be positive", ErrInvalidConfig)
	}
	if c.Bridge.PoseEvery <= 0 {
		return fmt.Errorf("%w: bridge.pose_every must be positive", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Bridge.Path, "/") {
		return fmt.Errorf("%w: bridge.path must start with /", ErrInvalidConfig)
	}
	return nil
}

// Load reads configuration from path and the environment. An empty path
// searches ./avatarmotion.yaml and the user config dir; a missing file
// leaves the defaults in place.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// Watch loads path and calls onChange for every revision written
// afterwards. An invalid revision arrives as a nil config and an error.
func Watch(path string, onChange func(*Config, error)) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: watch needs an explicit config file", ErrInvalidConfig)
	}
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("avatarmotion")
		v.AddConfigPath(".")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}
	return v, nil
}

// setDefaults registers every leaf of cfg so env overrides and partial
// files resolve against the full key set.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	walkDefaults(v, "", tree)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			walkDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// decode starts from a zero Config; every key already has a default.
func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal renders cfg as YAML
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".avatarmotion"), nil
}
