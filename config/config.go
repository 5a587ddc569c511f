// Package config loads the packager settings that are fixed before any track is processed.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deepch/vdkpack/format/cenc"
	"github.com/deepch/vdkpack/format/fmp4"
	"github.com/deepch/vdkpack/logger"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Packager   PackagerConfig   `yaml:"packager"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type PackagerConfig struct {
	UseDecodingTimestampInTimeline bool `yaml:"use_decoding_timestamp_in_timeline"`
}

// EncryptionConfig holds the pixel area thresholds of the SD/HD/UHD1/UHD2 track types.
type EncryptionConfig struct {
	MaxSDPixels   uint32 `yaml:"max_sd_pixels"`
	MaxHDPixels   uint32 `yaml:"max_hd_pixels"`
	MaxUHD1Pixels uint32 `yaml:"max_uhd1_pixels"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Encryption: EncryptionConfig{
			MaxSDPixels:   cenc.DefaultThresholds.MaxSDPixels,
			MaxHDPixels:   cenc.DefaultThresholds.MaxHDPixels,
			MaxUHD1Pixels: cenc.DefaultThresholds.MaxUHD1Pixels,
		},
		Logging: LoggingConfig{
			Level: "warning",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: encryption: %w", ErrInvalidConfig, err)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("%w: logging: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) Thresholds() cenc.Thresholds {
	return cenc.Thresholds{
		MaxSDPixels:   c.Encryption.MaxSDPixels,
		MaxHDPixels:   c.Encryption.MaxHDPixels,
		MaxUHD1Pixels: c.Encryption.MaxUHD1Pixels,
	}
}

func (c *Config) FragmenterConfig() fmp4.FragmenterConfig {
	return fmp4.FragmenterConfig{
		UseDecodingTimestampInTimeline: c.Packager.UseDecodingTimestampInTimeline,
	}
}

func (c *Config) LogLevel() (logger.Level, error) {
	var l logger.Level
	if err := l.Set(c.Logging.Level); err != nil {
		return logger.LevelUndefined, err
	}
	return l, nil
}
