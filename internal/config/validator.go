package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/elemgraph/internal/errors"
)

var knownHooks = []string{"named_operations", "named_views", "chain_limit", "logging"}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}
	return sb.String()
}

// Validate checks the configuration, including delegate graph
// configurations, and returns every problem found.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}
	c.validate(result, c.Graph.ID)
	return result
}

// Err returns the validation errors as a config error, or nil.
func (c *Config) Err() error {
	result := c.Validate()
	if result.HasErrors() {
		return errors.ConfigErrorf("%s", result.Error())
	}
	return nil
}

func (c *Config) validate(result *ValidationResult, path string) {
	if c.Graph.ID == "" {
		result.AddError("%s: graph.id is required", path)
	}
	for _, h := range c.Graph.Hooks {
		if !slices.Contains(knownHooks, h) {
			result.AddError("%s: unknown hook %q (known: %s)", path, h, strings.Join(knownHooks, ", "))
		}
	}
	if c.Graph.MaxChainLength < 0 {
		result.AddError("%s: graph.max_chain_length must not be negative", path)
	}
	if len(c.Graph.Schema) == 0 && c.Store.Type != StoreFederated {
		result.AddWarning("%s: no schema files configured, the graph accepts no elements", path)
	}

	c.validateStore(result, path)
	c.validateCaches(result, path)

	if c.Jobs.MaxConcurrent < 0 {
		result.AddError("%s: jobs.max_concurrent must not be negative", path)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil && c.Logging.Level != "" {
		result.AddError("%s: logging.level %q is invalid", path, c.Logging.Level)
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		result.AddError("%s: logging.format must be text or json, got %q", path, f)
	}
}

func (c *Config) validateStore(result *ValidationResult, path string) {
	if c.Store.BatchSize < 0 {
		result.AddError("%s: store.batch_size must not be negative", path)
	}
	switch c.Store.Type {
	case StoreMap:
	case StoreBolt:
		if c.Store.BoltPath == "" {
			result.AddError("%s: store.bolt_path is required for the bolt store", path)
		}
	case StoreNeo4j:
		c.validateNeo4j(result, path)
	case StoreFederated:
		c.validateFederation(result, path)
	default:
		result.AddError("%s: unknown store type %q", path, c.Store.Type)
	}
}

func (c *Config) validateNeo4j(result *ValidationResult, path string) {
	n := c.Store.Neo4j
	if n.URI == "" {
		result.AddError("%s: NEO4J_URI is required but not set", path)
	} else if _, err := url.Parse(n.URI); err != nil {
		result.AddError("%s: NEO4J_URI is invalid: %v", path, err)
	}
	if n.Username == "" {
		result.AddError("%s: NEO4J_USER is required but not set", path)
	}
	if n.Password == "" {
		result.AddError("%s: NEO4J_PASSWORD is required but not set. Set it via environment variable or keychain.", path)
	} else if n.Password == "password" || n.Password == "neo4j" {
		result.AddWarning("%s: NEO4J_PASSWORD is set to a very common password", path)
	}
	if n.Database == "" {
		result.AddWarning("%s: NEO4J_DATABASE is not set, will use 'neo4j' as default", path)
	}
}

func (c *Config) validateFederation(result *ValidationResult, path string) {
	f := c.Federation
	if len(f.Graphs) == 0 {
		result.AddWarning("%s: federated store has no delegate graphs", path)
	}
	if f.Timeout < 0 {
		result.AddError("%s: federation.timeout must not be negative", path)
	} else if f.Timeout > 0 && f.Timeout < 10*time.Millisecond {
		result.AddWarning("%s: federation.timeout of %s is very short", path, f.Timeout)
	}
	if f.MaxConcurrency < 0 {
		result.AddError("%s: federation.max_concurrency must not be negative", path)
	}
	if f.RateLimit < 0 {
		result.AddError("%s: federation.rate_limit must not be negative", path)
	}
	seen := map[string]bool{}
	for i := range f.Graphs {
		g := &f.Graphs[i]
		sub := fmt.Sprintf("%s/%s", path, g.Graph.ID)
		if g.Graph.ID != "" && seen[g.Graph.ID] {
			result.AddError("%s: duplicate delegate graph id %q", path, g.Graph.ID)
		}
		seen[g.Graph.ID] = true
		g.validate(result, sub)
	}
}

func (c *Config) validateCaches(result *ValidationResult, path string) {
	for name, cc := range map[string]CacheConfig{
		"named_views":      c.Caches.NamedViews,
		"named_operations": c.Caches.NamedOperations,
		"jobs":             c.Caches.Jobs,
	} {
		switch cc.Type {
		case "", CacheMemory:
		case CacheBolt:
			if cc.Path == "" {
				result.AddError("%s: caches.%s.path is required for a bolt cache", path, name)
			} else if c.Store.Type == StoreBolt && cc.Path == c.Store.BoltPath {
				result.AddError("%s: caches.%s.path must differ from store.bolt_path", path, name)
			}
		case CacheRedis:
			if cc.Redis.Addr == "" {
				result.AddError("%s: caches.%s.redis.addr is required for a redis cache", path, name)
			}
		case CacheSQLite, CachePostgres:
			if name != "jobs" {
				result.AddError("%s: caches.%s does not support %s", path, name, cc.Type)
			} else if cc.Type == CacheSQLite && cc.Path == "" && cc.DSN == "" {
				result.AddError("%s: caches.jobs.path is required for a sqlite job store", path)
			} else if cc.Type == CachePostgres && cc.DSN == "" {
				result.AddError("%s: caches.jobs.dsn (or DATABASE_URL) is required for a postgres job store", path)
			}
		default:
			result.AddError("%s: caches.%s has unknown type %q", path, name, cc.Type)
		}
	}
}
