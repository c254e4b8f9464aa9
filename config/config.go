package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/vsbench/client"
	"github.com/dshills/vsbench/core"
	"github.com/dshills/vsbench/mockserver"
	"github.com/dshills/vsbench/persistence"
	"github.com/dshills/vsbench/workload"
)

// Config represents the complete vsbench configuration
type Config struct {
	// Benchmark scenario
	Scenario Scenario `yaml:"scenario" json:"scenario"`

	// Report output
	Report ReportConfig `yaml:"report" json:"report"`

	// Prometheus endpoint for live metrics
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Mock service configuration (cmd/mockserver)
	Server mockserver.ServerConfig `yaml:"server" json:"server"`

	// Snapshot storage of the mock service
	Persistence persistence.PersistenceConfig `yaml:"persistence" json:"persistence"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// Scenario describes one benchmark run against the service
type Scenario struct {
	Name      string           `yaml:"name" json:"name"`
	Client    client.Config    `yaml:"client" json:"client"`
	Index     core.IndexConfig `yaml:"index" json:"index"`
	Workload  WorkloadConfig   `yaml:"workload" json:"workload"`
	Pool      PoolConfig       `yaml:"pool" json:"pool"`
	Ingest    IngestConfig     `yaml:"ingest" json:"ingest"`
	Search    SearchConfig     `yaml:"search" json:"search"`
	Lifecycle bool             `yaml:"lifecycle" json:"lifecycle"`
	// Cleanup deletes the index after the last phase
	Cleanup bool `yaml:"cleanup" json:"cleanup"`
}

// WorkloadConfig controls vector generation
type WorkloadConfig struct {
	Seed         *int64  `yaml:"seed,omitempty" json:"seed,omitempty"`
	Min          float32 `yaml:"min" json:"min"`
	Max          float32 `yaml:"max" json:"max"`
	Normalize    bool    `yaml:"normalize" json:"normalize"`
	WithMetadata bool    `yaml:"with_metadata" json:"with_metadata"`
	IDOffset     int64   `yaml:"id_offset" json:"id_offset"`
}

// PoolConfig controls the connection pool
type PoolConfig struct {
	// Size of the pool; zero sizes it to the largest phase concurrency
	Size           int           `yaml:"size" json:"size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
	Warmup         bool          `yaml:"warmup" json:"warmup"`
}

// IngestConfig controls the bulk ingestion phase
type IngestConfig struct {
	Batches     int `yaml:"batches" json:"batches"`
	BatchSize   int `yaml:"batch_size" json:"batch_size"`
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// SearchConfig controls the search phases
type SearchConfig struct {
	Queries        int  `yaml:"queries" json:"queries"`
	K              int  `yaml:"k" json:"k"`
	EfSearch       int  `yaml:"ef_search" json:"ef_search"`
	Concurrency    int  `yaml:"concurrency" json:"concurrency"`
	ReturnMetadata bool `yaml:"return_metadata" json:"return_metadata"`
	// Filters lists filter catalog labels to run, one search phase each.
	// "all" selects the whole catalog.
	Filters []string `yaml:"filters" json:"filters"`
}

// ReportConfig controls how the final report is written
type ReportConfig struct {
	// Format is "table" or "json"
	Format string `yaml:"format" json:"format"`
	// Output is "stdout" or a file path
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Listen address for /metrics; empty disables it
	Listen string `yaml:"listen" json:"listen"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// FilterAll selects every filter of the catalog
const FilterAll = "all"

var filterLabels = []string{
	workload.FilterNone,
	workload.FilterExact,
	workload.FilterGreaterThan,
	workload.FilterLessThan,
	workload.FilterAnd,
	workload.FilterOr,
}

// LoadConfig loads configuration from various sources with the following precedence:
// 1. Environment variables
// 2. Configuration file (~/.vsbench.yml or specified path)
// 3. Default values
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	explicit := configPath != ""
	if !explicit {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(homeDir, ".vsbench.yml")
		}
	}

	if configPath != "" {
		if err := loadConfigFromFile(configPath, config); err != nil {
			// A missing default file is fine; a missing explicit one is not
			if explicit || !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		}
	}

	if err := loadConfigFromEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a YAML file
func loadConfigFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(config *Config) error {
	s := &config.Scenario

	if v := os.Getenv("VSBENCH_BASE_URL"); v != "" {
		s.Client.BaseURL = v
	}
	if v := os.Getenv("VSBENCH_NAMING"); v != "" {
		s.Client.Wire.Naming = client.Naming(v)
	}
	if v := os.Getenv("VSBENCH_FILTER_FORM"); v != "" {
		s.Client.Wire.Filter = client.FilterForm(v)
	}
	if v := os.Getenv("VSBENCH_INDEX_NAME"); v != "" {
		s.Index.Name = v
	}
	if v := os.Getenv("VSBENCH_DIMENSION"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return core.ConfigErrorf("VSBENCH_DIMENSION: %v", err)
		}
		s.Index.Dimension = d
	}
	if v := os.Getenv("VSBENCH_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.ConfigErrorf("VSBENCH_SEED: %v", err)
		}
		s.Workload.Seed = &seed
	}

	// Mock service
	if v := os.Getenv("VSBENCH_MOCK_PORT"); v != "" {
		p, err := parsePort(v)
		if err != nil {
			return core.ConfigErrorf("VSBENCH_MOCK_PORT: %v", err)
		}
		config.Server.Port = p
	}
	if v := os.Getenv("VSBENCH_PERSISTENCE_BACKEND"); v != "" {
		config.Persistence.Type = persistence.PersistenceType(v)
	}
	if v := os.Getenv("VSBENCH_PERSISTENCE_PATH"); v != "" {
		config.Persistence.Path = v
	}

	if v := os.Getenv("VSBENCH_METRICS_LISTEN"); v != "" {
		config.Metrics.Listen = v
	}
	if v := os.Getenv("VSBENCH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Scenario: DefaultScenario(),
		Report: ReportConfig{
			Format: "table",
			Output: "stdout",
		},
		Server:      mockserver.DefaultServerConfig(),
		Persistence: persistence.DefaultPersistenceConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// DefaultScenario returns the reference load: 512-dimensional inner-product
// vectors, 500 batches of 100 documents with 20 writers, then 10000 queries
// with 100 readers.
func DefaultScenario() Scenario {
	return Scenario{
		Name:   "default",
		Client: client.DefaultConfig(),
		Index: core.IndexConfig{
			Name:           "test_index",
			Dimension:      512,
			Kind:           core.IndexApproximate,
			Space:          core.SpaceIP,
			EfConstruction: 512,
			M:              16,
		},
		Workload: WorkloadConfig{
			Min:       -1,
			Max:       1,
			Normalize: true,
		},
		Pool: PoolConfig{
			AcquireTimeout: 30 * time.Second,
			Warmup:         true,
		},
		Ingest: IngestConfig{
			Batches:     500,
			BatchSize:   100,
			Concurrency: 20,
		},
		Search: SearchConfig{
			Queries:     10000,
			K:           100,
			EfSearch:    512,
			Concurrency: 100,
			Filters:     []string{workload.FilterNone},
		},
		Cleanup: true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Scenario.Validate(); err != nil {
		return err
	}

	switch c.Report.Format {
	case "table", "json":
	default:
		return core.ConfigErrorf("invalid report format: %s", c.Report.Format)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.ConfigErrorf("invalid port number: %d", c.Server.Port)
	}

	if err := persistence.ValidateConfig(c.Persistence); err != nil {
		return core.ConfigErrorf("persistence config validation failed: %v", err)
	}

	return nil
}

// Validate checks that a scenario can run. Every error satisfies
// core.IsConfigError.
func (s *Scenario) Validate() error {
	if err := s.Client.Validate(); err != nil {
		return err
	}

	if err := core.ValidateIndexConfig(s.Index); err != nil {
		return err
	}

	if s.Workload.Max <= s.Workload.Min {
		return core.ConfigErrorf("workload range [%v, %v) is empty", s.Workload.Min, s.Workload.Max)
	}

	if s.Ingest.Batches < 0 {
		return core.ConfigErrorf("ingest batches cannot be negative, got %d", s.Ingest.Batches)
	}
	if s.Ingest.BatchSize <= 0 {
		return core.ConfigErrorf("ingest batch size must be positive, got %d", s.Ingest.BatchSize)
	}
	if s.Ingest.Concurrency <= 0 {
		return core.ConfigErrorf("ingest concurrency must be positive, got %d", s.Ingest.Concurrency)
	}

	if s.Search.Queries < 0 {
		return core.ConfigErrorf("search queries cannot be negative, got %d", s.Search.Queries)
	}
	if s.Search.K <= 0 {
		return core.ConfigErrorf("k must be positive, got %d", s.Search.K)
	}
	if s.Search.EfSearch < 0 {
		return core.ConfigErrorf("ef_search cannot be negative, got %d", s.Search.EfSearch)
	}
	if s.Search.Concurrency <= 0 {
		return core.ConfigErrorf("search concurrency must be positive, got %d", s.Search.Concurrency)
	}
	for _, label := range s.Search.Filters {
		if !knownFilter(label) {
			return core.ConfigErrorf("unknown filter %q", label)
		}
		// Filters match on document metadata; without it every filtered
		// search would return nothing.
		if label != workload.FilterNone && !s.Workload.WithMetadata {
			return core.ConfigErrorf("filter %q requires workload.with_metadata", label)
		}
	}

	if s.Pool.Size < 0 {
		return core.ConfigErrorf("pool size cannot be negative, got %d", s.Pool.Size)
	}
	if s.Pool.AcquireTimeout < 0 {
		return core.ConfigErrorf("pool acquire timeout cannot be negative")
	}

	return nil
}

// PoolSize returns the configured pool size, or the largest phase
// concurrency when unset.
func (s *Scenario) PoolSize() int {
	if s.Pool.Size > 0 {
		return s.Pool.Size
	}
	if s.Search.Concurrency > s.Ingest.Concurrency {
		return s.Search.Concurrency
	}
	return s.Ingest.Concurrency
}

// FilterLabels returns the selected filter labels in catalog order
func (s *Scenario) FilterLabels() []string {
	if len(s.Search.Filters) == 0 {
		return []string{workload.FilterNone}
	}

	selected := make(map[string]bool, len(s.Search.Filters))
	for _, label := range s.Search.Filters {
		if label == FilterAll {
			return append([]string(nil), filterLabels...)
		}
		selected[label] = true
	}

	var labels []string
	for _, label := range filterLabels {
		if selected[label] {
			labels = append(labels, label)
		}
	}
	return labels
}

// GeneratorConfig converts the workload settings for the index dimension
func (s *Scenario) GeneratorConfig() workload.Config {
	return workload.Config{
		Dimension:    s.Index.Dimension,
		Seed:         s.Workload.Seed,
		Min:          s.Workload.Min,
		Max:          s.Workload.Max,
		Normalize:    s.Workload.Normalize,
		WithMetadata: s.Workload.WithMetadata,
		IDOffset:     s.Workload.IDOffset,
	}
}

func knownFilter(label string) bool {
	if label == FilterAll {
		return true
	}
	for _, l := range filterLabels {
		if l == label {
			return true
		}
	}
	return false
}

// parsePort parses a port string to int
func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	return port, err
}
