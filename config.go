package kennisgraaf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the kennisgraaf engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.kennisgraaf/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "kennisgraaf". The file will be <DBName>.db inside the
	// storage directory (~/.kennisgraaf/ or working dir).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses
	// ~/.kennisgraaf/, "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// InMemory disables SQLite persistence entirely; graph, index and
	// suggestions live only in process memory.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// ProjectionDim is the dimension of the dense signature projections
	// stored for hybrid search (default 256).
	ProjectionDim int `json:"projection_dim" yaml:"projection_dim"`

	// Extraction dictionary extensions, merged into the built-in
	// organization, place and policy-term lists.
	ExtraOrganizations []string `json:"extra_organizations" yaml:"extra_organizations"`
	ExtraPlaces        []string `json:"extra_places" yaml:"extra_places"`
	ExtraPolicyTerms   []string `json:"extra_policy_terms" yaml:"extra_policy_terms"`

	// Community detection
	Resolution    float64 `json:"resolution" yaml:"resolution"`         // modularity resolution (default 1.0)
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"` // merge round cap (default 200)

	// Suggestions
	MaxTags      int `json:"max_tags" yaml:"max_tags"`           // tags per suggestion (default 5)
	SimilarCount int `json:"similar_count" yaml:"similar_count"` // similar documents per suggestion (default 5)

	// IngestConcurrency bounds parallel document ingestion in IngestAll
	// (default 8).
	IngestConcurrency int `json:"ingest_concurrency" yaml:"ingest_concurrency"`

	// ListenAddr is the HTTP API listen address (default ":8080").
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// DefaultConfig returns a Config with sensible defaults.
// Database is stored in ~/.kennisgraaf/kennisgraaf.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:            "kennisgraaf",
		StorageDir:        "home",
		ProjectionDim:     256,
		Resolution:        1.0,
		MaxIterations:     200,
		MaxTags:           5,
		SimilarCount:      5,
		IngestConcurrency: 8,
		ListenAddr:        ":8080",
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with. Zero values
// are allowed; they fall back to defaults.
func (c Config) Validate() error {
	if c.ProjectionDim < 0 {
		return fmt.Errorf("%w: projection_dim must be positive", ErrInvalidConfig)
	}
	if c.Resolution < 0 {
		return fmt.Errorf("%w: resolution must be non-negative", ErrInvalidConfig)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: max_iterations must be non-negative", ErrInvalidConfig)
	}
	if c.MaxTags < 0 {
		return fmt.Errorf("%w: max_tags must be non-negative", ErrInvalidConfig)
	}
	if c.SimilarCount < 0 {
		return fmt.Errorf("%w: similar_count must be non-negative", ErrInvalidConfig)
	}
	if c.IngestConcurrency < 0 {
		return fmt.Errorf("%w: ingest_concurrency must be non-negative", ErrInvalidConfig)
	}
	switch c.StorageDir {
	case "", "home", "local", "cwd":
	default:
		return fmt.Errorf("%w: unknown storage_dir %q", ErrInvalidConfig, c.StorageDir)
	}
	return nil
}

// withDefaults fills zero values with the defaults from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DBName == "" {
		c.DBName = def.DBName
	}
	if c.StorageDir == "" {
		c.StorageDir = def.StorageDir
	}
	if c.ProjectionDim == 0 {
		c.ProjectionDim = def.ProjectionDim
	}
	if c.Resolution == 0 {
		c.Resolution = def.Resolution
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.MaxTags == 0 {
		c.MaxTags = def.MaxTags
	}
	if c.SimilarCount == 0 {
		c.SimilarCount = def.SimilarCount
	}
	if c.IngestConcurrency == 0 {
		c.IngestConcurrency = def.IngestConcurrency
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	return c
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "kennisgraaf"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".kennisgraaf")
		return filepath.Join(dir, name+".db")
	}
}
