// Package config loads roverpanel.json and applies environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gwillem/roverpanel/pkg/robot"
)

const DefaultConfigFile = "roverpanel.json"

// Config holds the panel and controller configuration.
type Config struct {
	LogLevel   string           `json:"log_level" env:"ROVER_LOG_LEVEL"`
	Panel      PanelConfig      `json:"panel"`
	Controller ControllerConfig `json:"controller"`
}

// PanelConfig configures the operator panel.
type PanelConfig struct {
	URL      string `json:"url" env:"ROVER_URL"`
	Password string `json:"password,omitempty" env:"ROVER_PASSWORD"`

	RepeatMS        int `json:"repeat_ms"`
	ReleaseWindowMS int `json:"release_window_ms"`
	ServoStep       int `json:"servo_step"`
	SpeedStep       int `json:"speed_step"`
	Speed           int `json:"speed"`
}

// ControllerConfig configures the simulated controller.
type ControllerConfig struct {
	Listen   string `json:"listen" env:"ROVER_LISTEN"`
	Password string `json:"password" env:"ROVER_ADMIN_PASSWORD"`
	DB       string `json:"db" env:"ROVER_DB"`

	GimbalPort  string            `json:"gimbal_port,omitempty" env:"ROVER_GIMBAL_PORT"`
	Calibration robot.Calibration `json:"calibration,omitempty"`

	DetectionAvailable bool   `json:"detection_available"`
	Model              string `json:"model"`

	StatusMS  int `json:"status_ms"`
	SensorsMS int `json:"sensors_ms"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Panel: PanelConfig{
			URL:             "ws://localhost:5000/ws",
			RepeatMS:        120,
			ReleaseWindowMS: 600,
			ServoStep:       2,
			SpeedStep:       10,
			Speed:           40,
		},
		Controller: ControllerConfig{
			Listen:             ":5000",
			Password:           "admin",
			DB:                 "roverpanel.db",
			DetectionAvailable: true,
			Model:              "yolov8s-worldv2.pt",
			StatusMS:           250,
			SensorsMS:          300,
		},
	}
}

// RepeatInterval returns the press-and-hold repeat period.
func (p PanelConfig) RepeatInterval() time.Duration {
	return time.Duration(p.RepeatMS) * time.Millisecond
}

// ReleaseWindow is how long a terminal key may go without repeating before
// it counts as released.
func (p PanelConfig) ReleaseWindow() time.Duration {
	return time.Duration(p.ReleaseWindowMS) * time.Millisecond
}

func (c ControllerConfig) StatusInterval() time.Duration {
	return time.Duration(c.StatusMS) * time.Millisecond
}

func (c ControllerConfig) SensorsInterval() time.Duration {
	return time.Duration(c.SensorsMS) * time.Millisecond
}

// IsCalibrated returns true if the gimbal has calibration data
func (c ControllerConfig) IsCalibrated() bool {
	return len(c.Calibration) > 0
}

// Load reads the default config file, falling back to defaults when it
// does not exist, then applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom reads path, falling back to defaults when it does not exist,
// then applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv applies environment variables to target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Exists returns true if the default config file exists
func Exists() bool {
	return ExistsAt(DefaultConfigFile)
}

func ExistsAt(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
