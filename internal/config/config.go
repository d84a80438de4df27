package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store types
const (
	StoreMap       = "map"
	StoreBolt      = "bolt"
	StoreNeo4j     = "neo4j"
	StoreFederated = "federated"
)

// Cache backends
const (
	CacheMemory   = "memory"
	CacheBolt     = "bolt"
	CacheRedis    = "redis"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
)

// Config holds all configuration settings for one graph
type Config struct {
	Graph GraphConfig `yaml:"graph" mapstructure:"graph"`

	// Storage backend
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Delegate graphs when Store.Type is "federated"
	Federation FederationConfig `yaml:"federation" mapstructure:"federation"`

	Caches  CachesConfig  `yaml:"caches" mapstructure:"caches"`
	Jobs    JobsConfig    `yaml:"jobs" mapstructure:"jobs"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

type GraphConfig struct {
	ID          string   `yaml:"id" mapstructure:"id"`
	Description string   `yaml:"description" mapstructure:"description"`
	Schema      []string `yaml:"schema" mapstructure:"schema"` // Files or directories, merged in order
	// Hooks run in this order: "named_operations", "named_views", "chain_limit", "logging"
	Hooks          []string `yaml:"hooks" mapstructure:"hooks"`
	MaxChainLength int      `yaml:"max_chain_length" mapstructure:"max_chain_length"`
}

type StoreConfig struct {
	Type string `yaml:"type" mapstructure:"type"` // "map", "bolt", "neo4j", "federated"
	// Merge observations of aggregating groups as they are added
	IngestAggregation bool        `yaml:"ingest_aggregation" mapstructure:"ingest_aggregation"`
	BatchSize         int         `yaml:"batch_size" mapstructure:"batch_size"`
	BoltPath          string      `yaml:"bolt_path" mapstructure:"bolt_path"`
	Neo4j             Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

type FederationConfig struct {
	SkipFailed     bool          `yaml:"skip_failed" mapstructure:"skip_failed"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RateLimit      float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // Delegate calls per second
	Burst          int           `yaml:"burst" mapstructure:"burst"`
	Graphs         []Config      `yaml:"graphs" mapstructure:"graphs"`
}

type CachesConfig struct {
	NamedViews      CacheConfig `yaml:"named_views" mapstructure:"named_views"`
	NamedOperations CacheConfig `yaml:"named_operations" mapstructure:"named_operations"`
	Jobs            CacheConfig `yaml:"jobs" mapstructure:"jobs"`
}

type CacheConfig struct {
	Type   string `yaml:"type" mapstructure:"type"` // "memory", "bolt", "redis"; jobs also "sqlite", "postgres"
	Path   string `yaml:"path" mapstructure:"path"`
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
	Redis  Redis  `yaml:"redis" mapstructure:"redis"`
}

type Redis struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Hash     string `yaml:"hash" mapstructure:"hash"`
}

type JobsConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	MaxConcurrent int  `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`   // "debug", "info", "warn", "error"
	Format     string `yaml:"format" mapstructure:"format"` // "text", "json"
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Graph: GraphConfig{
			ID:             "graph",
			Hooks:          []string{"named_operations", "named_views", "logging"},
			MaxChainLength: 100,
		},
		Store: StoreConfig{
			Type:              StoreMap,
			IngestAggregation: true,
			BatchSize:         1000,
			BoltPath:          filepath.Join(homeDir, ".elemgraph", "elements.db"),
			Neo4j: Neo4jConfig{
				URI:      "bolt://localhost:7687",
				Username: "neo4j",
				Database: "neo4j",
			},
		},
		Federation: FederationConfig{
			Timeout:        30 * time.Second,
			MaxConcurrency: 8,
		},
		Caches: CachesConfig{
			NamedViews:      CacheConfig{Type: CacheMemory},
			NamedOperations: CacheConfig{Type: CacheMemory},
			Jobs:            CacheConfig{Type: CacheMemory},
		},
		Jobs: JobsConfig{
			Enabled:       true,
			MaxConcurrent: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load loads configuration from file. An empty path searches the
// standard locations; a missing file leaves the defaults.
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("graph", cfg.Graph)
	v.SetDefault("store", cfg.Store)
	v.SetDefault("federation", cfg.Federation)
	v.SetDefault("caches", cfg.Caches)
	v.SetDefault("jobs", cfg.Jobs)
	v.SetDefault("logging", cfg.Logging)

	v.SetEnvPrefix("EGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".elemgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".elemgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range cfg.Federation.Graphs {
		cfg.Federation.Graphs[i].fillDefaults()
	}
	applyEnvOverrides(cfg)
	if base := v.ConfigFileUsed(); base != "" {
		cfg.resolvePaths(filepath.Dir(base))
	}
	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".elemgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if id := os.Getenv("EGRAPH_GRAPH_ID"); id != "" {
		cfg.Graph.ID = id
	}
	if storeType := os.Getenv("EGRAPH_STORE_TYPE"); storeType != "" {
		cfg.Store.Type = storeType
	}
	if path := os.Getenv("EGRAPH_BOLT_PATH"); path != "" {
		cfg.Store.BoltPath = expandPath(path)
	}
	if level := os.Getenv("EGRAPH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if skip := os.Getenv("EGRAPH_SKIP_FAILED"); skip != "" {
		if b, err := strconv.ParseBool(skip); err == nil {
			cfg.Federation.SkipFailed = b
		}
	}

	// Neo4j connection
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Store.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Store.Neo4j.Username = user
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Store.Neo4j.Database = db
	}
	// Precedence: 1. Env var (highest) 2. Keychain 3. Config file (lowest)
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Store.Neo4j.Password = password
	} else if cfg.Store.Neo4j.Password == "" && cfg.Store.Type == StoreNeo4j {
		km := NewKeyringManager(nil)
		if km.IsAvailable() {
			if stored, err := km.GetNeo4jPassword(); err == nil && stored != "" {
				cfg.Store.Neo4j.Password = stored
			}
		}
	}

	// Caches
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		for _, c := range []*CacheConfig{&cfg.Caches.NamedViews, &cfg.Caches.NamedOperations, &cfg.Caches.Jobs} {
			if c.Type == CacheRedis && c.Redis.Addr == "" {
				c.Redis.Addr = addr
			}
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" && cfg.Caches.Jobs.Type == CachePostgres && cfg.Caches.Jobs.DSN == "" {
		cfg.Caches.Jobs.DSN = dsn
	}
}

// fillDefaults sets the unset fields of a delegate graph configuration,
// which viper decodes without defaults.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Store.Type == "" {
		c.Store.Type = d.Store.Type
	}
	if c.Store.BatchSize == 0 {
		c.Store.BatchSize = d.Store.BatchSize
	}
	if c.Graph.MaxChainLength == 0 {
		c.Graph.MaxChainLength = d.Graph.MaxChainLength
	}
	if c.Graph.Hooks == nil {
		c.Graph.Hooks = d.Graph.Hooks
	}
	for _, cc := range []*CacheConfig{&c.Caches.NamedViews, &c.Caches.NamedOperations, &c.Caches.Jobs} {
		if cc.Type == "" {
			cc.Type = CacheMemory
		}
	}
	if c.Federation.MaxConcurrency == 0 {
		c.Federation.MaxConcurrency = d.Federation.MaxConcurrency
	}
	for i := range c.Federation.Graphs {
		c.Federation.Graphs[i].fillDefaults()
	}
}

// resolvePaths makes relative schema and file paths relative to the
// config file's directory, including those of delegate graphs.
func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		p = expandPath(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i, p := range c.Graph.Schema {
		c.Graph.Schema[i] = resolve(p)
	}
	c.Store.BoltPath = resolve(c.Store.BoltPath)
	c.Logging.File = resolve(c.Logging.File)
	for _, cc := range []*CacheConfig{&c.Caches.NamedViews, &c.Caches.NamedOperations, &c.Caches.Jobs} {
		cc.Path = resolve(cc.Path)
	}
	for i := range c.Federation.Graphs {
		c.Federation.Graphs[i].resolvePaths(dir)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("graph", c.Graph)
	v.Set("store", c.Store)
	v.Set("federation", c.Federation)
	v.Set("caches", c.Caches)
	v.Set("jobs", c.Jobs)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
