// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < --config file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UPPAAL2OCTOPUS_"

// Config holds all uppaal2octopus configuration.
type Config struct {
	Version int `yaml:"version"`

	Trace     TraceConfig     `yaml:"trace"`
	Output    OutputConfig    `yaml:"output"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// TraceConfig controls trace decoding.
type TraceConfig struct {
	Format      string `yaml:"format"`       // xtr | hr
	OriginClock string `yaml:"origin_clock"` // reference clock of XTR zones
	ActiveClock string `yaml:"active_clock"` // clock that timestamps events
}

// OutputConfig controls event serialization.
type OutputConfig struct {
	Format      string `yaml:"format"`      // tsv | parquet | xlsx; empty = by extension
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
	BatchSize   int    `yaml:"batch_size"`
}

// StorageConfig for remote inputs and outputs.
type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures s3:// paths.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// LogConfig controls the log handler.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Trace: TraceConfig{
			Format:      "xtr",
			OriginClock: "t(0)",
			ActiveClock: "c",
		},
		Output: OutputConfig{
			Compression: "snappy",
			BatchSize:   8192,
		},
		Storage: StorageConfig{
			S3: S3Config{Region: "us-east-1"},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			ServiceName:   "uppaal2octopus",
			SamplingRatio: 1.0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.Trace.Format {
	case "xtr", "hr", "human":
	default:
		return fmt.Errorf("trace.format: unknown format %q", c.Trace.Format)
	}
	if c.Trace.OriginClock == "" || c.Trace.ActiveClock == "" {
		return fmt.Errorf("trace: clock names must not be empty")
	}
	switch c.Output.Format {
	case "", "tsv", "parquet", "xlsx":
	default:
		return fmt.Errorf("output.format: unknown format %q", c.Output.Format)
	}
	switch c.Output.Compression {
	case "none", "snappy", "gzip", "zstd", "lz4":
	default:
		return fmt.Errorf("output.compression: unknown codec %q", c.Output.Compression)
	}
	if c.Output.BatchSize <= 0 {
		return fmt.Errorf("output.batch_size must be positive")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1]")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu          sync.RWMutex
	config      *Config
	searchPaths []string
	paths       []string // Paths that were loaded
}

// NewManager creates a new configuration manager searching the standard
// system, user and project locations.
func NewManager() *Manager {
	return NewManagerWithPaths(defaultPaths()...)
}

// NewManagerWithPaths creates a manager searching only paths, in order.
func NewManagerWithPaths(paths ...string) *Manager {
	return &Manager{
		config:      Default(),
		searchPaths: paths,
	}
}

// Load loads configuration from all sources in priority order. A non-empty
// explicit path must exist; the standard locations are optional.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.searchPaths {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("config %s: %w", path, err)
			}
			continue
		}
		m.paths = append(m.paths, path)
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			return fmt.Errorf("config %s: %w", explicit, err)
		}
		m.paths = append(m.paths, explicit)
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// defaultPaths returns config file paths in priority order.
func defaultPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/uppaal2octopus/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".uppaal2octopus", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".uppaal2octopus.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	dst := m.config

	setString(&dst.Trace.Format, src.Trace.Format)
	setString(&dst.Trace.OriginClock, src.Trace.OriginClock)
	setString(&dst.Trace.ActiveClock, src.Trace.ActiveClock)

	setString(&dst.Output.Format, src.Output.Format)
	setString(&dst.Output.Compression, src.Output.Compression)
	if src.Output.BatchSize != 0 {
		dst.Output.BatchSize = src.Output.BatchSize
	}

	setString(&dst.Storage.S3.Region, src.Storage.S3.Region)
	setString(&dst.Storage.S3.Endpoint, src.Storage.S3.Endpoint)
	if src.Storage.S3.UsePathStyle {
		dst.Storage.S3.UsePathStyle = true
	}

	if src.Telemetry.Enabled {
		dst.Telemetry.Enabled = true
	}
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setString(&dst.Telemetry.ServiceName, src.Telemetry.ServiceName)
	if src.Telemetry.SamplingRatio != 0 {
		dst.Telemetry.SamplingRatio = src.Telemetry.SamplingRatio
	}

	setString(&dst.Log.Level, src.Log.Level)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// loadEnv loads configuration from UPPAAL2OCTOPUS_* environment variables.
func (m *Manager) loadEnv() error {
	c := m.config

	strs := map[string]*string{
		"TRACE_FORMAT":      &c.Trace.Format,
		"ORIGIN_CLOCK":      &c.Trace.OriginClock,
		"ACTIVE_CLOCK":      &c.Trace.ActiveClock,
		"OUTPUT_FORMAT":     &c.Output.Format,
		"COMPRESSION":       &c.Output.Compression,
		"S3_REGION":         &c.Storage.S3.Region,
		"S3_ENDPOINT":       &c.Storage.S3.Endpoint,
		"OTEL_ENDPOINT":     &c.Telemetry.Endpoint,
		"OTEL_SERVICE_NAME": &c.Telemetry.ServiceName,
		"LOG_LEVEL":         &c.Log.Level,
	}
	for name, dst := range strs {
		setString(dst, os.Getenv(EnvPrefix+name))
	}

	if v := os.Getenv(EnvPrefix + "BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBATCH_SIZE: %w", EnvPrefix, err)
		}
		c.Output.BatchSize = n
	}
	if v := os.Getenv(EnvPrefix + "S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sS3_PATH_STYLE: %w", EnvPrefix, err)
		}
		c.Storage.S3.UsePathStyle = b
	}
	if v := os.Getenv(EnvPrefix + "TELEMETRY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sTELEMETRY: %w", EnvPrefix, err)
		}
		c.Telemetry.Enabled = b
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}
