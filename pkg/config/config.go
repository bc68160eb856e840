// Package config provides configuration loading and management for orthoview.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orthoview/internal/models"
	"orthoview/pkg/volume"
)

// Source kinds
const (
	SourceFS   = "fs"
	SourceHTTP = "http"
	SourceS3   = "s3"
)

// Export formats
const (
	FormatJPEG = "jpeg"
	FormatTIFF = "tiff"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Download selects how volume data is fetched: upfront, on_demand or hybrid
	Download string `yaml:"download"`

	// Source describes where volumes, headers and transforms are stored
	Source SourceConfig `yaml:"source"`

	// Volumes lists the volumes of the session
	Volumes []VolumeConfig `yaml:"volumes"`

	// Transforms names the transform files, relative to the source
	Transforms struct {
		// NativeToTemplate maps the subject's native space to template space
		NativeToTemplate string `yaml:"nativeToTemplate"`

		// LabelToTemplate maps the label atlas space to template space
		LabelToTemplate string `yaml:"labelToTemplate"`
	} `yaml:"transforms"`

	// Labels names the intensity to label mapping file
	Labels string `yaml:"labels"`

	// Export parameters for slice images
	Export struct {
		// Dir is the directory slice images are written to
		Dir string `yaml:"dir"`

		// Format is jpeg or tiff
		Format string `yaml:"format"`

		// Quality is the JPEG quality (1-100)
		Quality int `yaml:"quality"`
	} `yaml:"export"`

	// Verbose enables debug logging
	Verbose bool `yaml:"verbose"`
}

// SourceConfig selects and configures the storage backend
type SourceConfig struct {
	// Kind is fs, http or s3
	Kind string `yaml:"kind"`

	// Root is the directory (fs) or base URL (http)
	Root string `yaml:"root"`

	// Timeout bounds each HTTP request; zero means no timeout
	Timeout time.Duration `yaml:"timeout"`

	// S3 holds the object store settings used when Kind is s3
	S3 struct {
		Endpoint  string `yaml:"endpoint"`
		Bucket    string `yaml:"bucket"`
		AccessKey string `yaml:"accessKey"`
		SecretKey string `yaml:"secretKey"`
		UseSSL    bool   `yaml:"useSSL"`
		Prefix    string `yaml:"prefix"`
	} `yaml:"s3"`
}

// VolumeConfig describes one input volume
type VolumeConfig struct {
	// Alias is the name the volume is referred to by
	Alias string `yaml:"alias"`

	// File is the object name of the whole volume
	File string `yaml:"file"`

	// Header is the object name of the header; empty selects the default sampling
	Header string `yaml:"header"`

	// Space is the coordinate system of the volume: native, template or label
	Space string `yaml:"space"`

	// Common marks the volume as contributing to the common sampling
	Common bool `yaml:"common"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Download = volume.Hybrid.String()

	cfg.Source.Kind = SourceFS
	cfg.Source.Root = "."
	cfg.Source.Timeout = 30 * time.Second

	cfg.Export.Dir = "slices"
	cfg.Export.Format = FormatJPEG
	cfg.Export.Quality = 90

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Policy returns the parsed download method
func (c *Config) Policy() (volume.Policy, error) {
	return volume.ParsePolicy(c.Download)
}

// SpaceOf returns the parsed coordinate system of the volume. An empty
// value means template space.
func (v VolumeConfig) SpaceOf() (models.Space, error) {
	if v.Space == "" {
		return models.Template, nil
	}
	return models.ParseSpace(strings.ToLower(v.Space))
}

// Validate checks the configuration for values the loader cannot use
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	switch c.Source.Kind {
	case SourceFS, SourceHTTP:
		if c.Source.Root == "" {
			return fmt.Errorf("source: root is required for %s", c.Source.Kind)
		}
	case SourceS3:
		if c.Source.S3.Bucket == "" || c.Source.S3.Endpoint == "" {
			return fmt.Errorf("source: s3 endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("source: unknown kind %q", c.Source.Kind)
	}

	if len(c.Volumes) == 0 {
		return fmt.Errorf("volumes: at least one volume is required")
	}
	aliases := make(map[string]bool, len(c.Volumes))
	roles := make(map[models.Space]string)
	for i, v := range c.Volumes {
		if v.Alias == "" {
			return fmt.Errorf("volumes[%d]: alias is required", i)
		}
		if aliases[v.Alias] {
			return fmt.Errorf("volumes[%d]: duplicate alias %q", i, v.Alias)
		}
		aliases[v.Alias] = true

		if v.File == "" {
			return fmt.Errorf("volume %s: file is required", v.Alias)
		}
		s, err := v.SpaceOf()
		if err != nil {
			return fmt.Errorf("volume %s: %w", v.Alias, err)
		}
		if s == models.Common {
			return fmt.Errorf("volume %s: common is not a volume space", v.Alias)
		}
		// one native and one label volume at most
		if s == models.Native || s == models.Label {
			if other, ok := roles[s]; ok {
				return fmt.Errorf("volume %s: %s space already used by %s", v.Alias, s, other)
			}
			roles[s] = v.Alias
		}
	}

	switch c.Export.Format {
	case FormatJPEG, FormatTIFF:
	default:
		return fmt.Errorf("export: unknown format %q", c.Export.Format)
	}
	if c.Export.Format == FormatJPEG && (c.Export.Quality < 1 || c.Export.Quality > 100) {
		return fmt.Errorf("export: jpeg quality must be within 1-100, got %d", c.Export.Quality)
	}

	return nil
}
