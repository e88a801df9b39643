// Package config loads vexus configuration from YAML files and environment
// variables.
//
// Precedence, lowest first: built-in defaults, the user config
// (~/.config/vexus/config.yaml), the data directory's .vexus.yaml, then
// VEXUS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/vexus/internal/engine"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/logging"
	"github.com/Aman-CERP/vexus/internal/recovery"
	"github.com/Aman-CERP/vexus/internal/store"
)

// Keyed variants.
const (
	KeyedTag = "tag"
	KeyedID  = "id"
)

// Config represents the complete vexus configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Recovery RecoveryConfig `yaml:"recovery" json:"recovery"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// IndexConfig configures the vector store and its engine.
type IndexConfig struct {
	// Dimensions is the vector length. Zero means "take it from the saved
	// index"; creating a new index requires it.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// Capacity is the initial reservation, and the minimum capacity on load.
	Capacity int `yaml:"capacity" json:"capacity"`
	// Metric is "l2sq" or "cos".
	Metric         string `yaml:"metric" json:"metric"`
	M              int    `yaml:"m" json:"m"`
	EfSearch       int    `yaml:"ef_search" json:"ef_search"`
	EfConstruction int    `yaml:"ef_construction" json:"ef_construction"`
	// Keyed selects the store variant: "tag" (string tags) or "id" (caller labels).
	Keyed string `yaml:"keyed" json:"keyed"`
}

// StorageConfig locates the persisted artifacts.
type StorageConfig struct {
	// DataDir holds both artifacts. Defaults to the directory passed to Load.
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	IndexFile   string `yaml:"index_file" json:"index_file"`
	MappingFile string `yaml:"mapping_file" json:"mapping_file"`
}

// RecoveryConfig configures recovery from an external SQLite database.
type RecoveryConfig struct {
	// Driver is "sqlite" (pure Go, default) or "sqlite3" (CGO).
	Driver string `yaml:"driver" json:"driver"`
	// BatchHint is how many rows are read ahead of the ingest loop.
	BatchHint int `yaml:"batch_hint" json:"batch_hint"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	opts := engine.DefaultOptions(0)
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Capacity:       1000,
			Metric:         string(opts.Metric),
			M:              opts.M,
			EfSearch:       opts.EfSearch,
			EfConstruction: opts.EfConstruction,
			Keyed:          KeyedTag,
		},
		Storage: StorageConfig{
			IndexFile:   store.DefaultIndexFile,
			MappingFile: store.DefaultMappingFile,
		},
		Recovery: RecoveryConfig{
			Driver:    recovery.DriverModernc,
			BatchHint: recovery.DefaultBuffer,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      logging.DefaultLogPath(),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user config path, honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vexus", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vexus", "config.yaml")
	}
	return filepath.Join(home, ".config", "vexus", "config.yaml")
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load builds the configuration for the data directory dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, verrors.ConfigError("failed to load user config", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, verrors.ConfigError("failed to load project config", err).WithDetail("dir", dir)
	}

	cfg.applyEnvOverrides()

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, verrors.ConfigError("invalid configuration", err).
			WithSuggestion("check .vexus.yaml and VEXUS_* environment variables")
	}
	return cfg, nil
}

// loadFromFile loads .vexus.yaml, or .vexus.yml as a fallback, from dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".vexus.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".vexus.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML parses path and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Index
	if other.Index.Dimensions != 0 {
		c.Index.Dimensions = other.Index.Dimensions
	}
	if other.Index.Capacity != 0 {
		c.Index.Capacity = other.Index.Capacity
	}
	if other.Index.Metric != "" {
		c.Index.Metric = other.Index.Metric
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}
	if other.Index.EfConstruction != 0 {
		c.Index.EfConstruction = other.Index.EfConstruction
	}
	if other.Index.Keyed != "" {
		c.Index.Keyed = other.Index.Keyed
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.IndexFile != "" {
		c.Storage.IndexFile = other.Storage.IndexFile
	}
	if other.Storage.MappingFile != "" {
		c.Storage.MappingFile = other.Storage.MappingFile
	}

	// Recovery
	if other.Recovery.Driver != "" {
		c.Recovery.Driver = other.Recovery.Driver
	}
	if other.Recovery.BatchHint != 0 {
		c.Recovery.BatchHint = other.Recovery.BatchHint
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies VEXUS_* variables. Unparseable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VEXUS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Dimensions = n
		}
	}
	if v := os.Getenv("VEXUS_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Index.Capacity = n
		}
	}
	if v := os.Getenv("VEXUS_METRIC"); v != "" {
		c.Index.Metric = strings.ToLower(v)
	}
	if v := os.Getenv("VEXUS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VEXUS_RECOVERY_DRIVER"); v != "" {
		c.Recovery.Driver = v
	}
	if v := os.Getenv("VEXUS_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Index.Dimensions < 0 {
		return fmt.Errorf("index.dimensions must be non-negative, got %d", c.Index.Dimensions)
	}
	if c.Index.Capacity < 0 {
		return fmt.Errorf("index.capacity must be non-negative, got %d", c.Index.Capacity)
	}
	switch engine.Metric(c.Index.Metric) {
	case engine.MetricL2Sq, engine.MetricCosine:
	default:
		return fmt.Errorf("index.metric must be 'l2sq' or 'cos', got %s", c.Index.Metric)
	}
	if c.Index.M < 0 || c.Index.EfSearch < 0 || c.Index.EfConstruction < 0 {
		return fmt.Errorf("index.m, ef_search and ef_construction must be non-negative")
	}
	switch c.Index.Keyed {
	case KeyedTag, KeyedID:
	default:
		return fmt.Errorf("index.keyed must be 'tag' or 'id', got %s", c.Index.Keyed)
	}

	if c.Storage.IndexFile == "" {
		return fmt.Errorf("storage.index_file must not be empty")
	}
	if c.Index.Keyed == KeyedTag && c.Storage.MappingFile == "" {
		return fmt.Errorf("storage.mapping_file must not be empty for a tag-keyed index")
	}

	switch c.Recovery.Driver {
	case recovery.DriverModernc, recovery.DriverCGO:
	default:
		return fmt.Errorf("recovery.driver must be '%s' or '%s', got %s",
			recovery.DriverModernc, recovery.DriverCGO, c.Recovery.Driver)
	}
	if c.Recovery.BatchHint < 0 {
		return fmt.Errorf("recovery.batch_hint must be non-negative, got %d", c.Recovery.BatchHint)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return fmt.Errorf("logging.max_size_mb and max_files must be non-negative")
	}
	return nil
}

// StoreConfig converts the index section into a store configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Dimensions:     c.Index.Dimensions,
		Capacity:       c.Index.Capacity,
		Metric:         engine.Metric(c.Index.Metric),
		M:              c.Index.M,
		EfSearch:       c.Index.EfSearch,
		EfConstruction: c.Index.EfConstruction,
	}
}

// Paths returns the artifact paths. Relative file names resolve against
// the data directory.
func (c *Config) Paths() store.Paths {
	resolve := func(name string) string {
		if name == "" || filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(c.Storage.DataDir, name)
	}
	return store.Paths{
		Index:   resolve(c.Storage.IndexFile),
		Mapping: resolve(c.Storage.MappingFile),
	}
}

// LoggingConfig returns the file logging configuration for --debug runs.
func (c *Config) LoggingConfig(debug bool) logging.Config {
	lc := logging.DefaultConfig()
	lc.WriteToStderr = false
	if c.Logging.Level != "" {
		lc.Level = c.Logging.Level
	}
	if debug {
		lc.Level = "debug"
	}
	if c.Logging.File != "" {
		lc.FilePath = c.Logging.File
	}
	if c.Logging.MaxSizeMB > 0 {
		lc.MaxSizeMB = c.Logging.MaxSizeMB
	}
	if c.Logging.MaxFiles > 0 {
		lc.MaxFiles = c.Logging.MaxFiles
	}
	return lc
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
