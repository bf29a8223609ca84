package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for sourcesense.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Passwords are never read from YAML; each source names the variable holding it.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Datasource DatasourceConfig `yaml:"datasource"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Sources are named connection descriptors usable from the CLI and MCP tools.
	Sources []SourceConfig `yaml:"sources"`
}

// LoggingConfig selects the zap encoder and level.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
}

// ServerConfig configures the MCP HTTP listener started by `sourcesense serve`.
type ServerConfig struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// ExtractionConfig holds defaults for every extraction run.
type ExtractionConfig struct {
	// RunTimeout bounds a whole extraction; facets still running when it expires are cancelled.
	RunTimeout       time.Duration `yaml:"run_timeout" env:"EXTRACTION_RUN_TIMEOUT" env-default:"2m"`
	SampleSize       int           `yaml:"sample_size" env:"EXTRACTION_SAMPLE_SIZE" env-default:"1000"`
	MaxSampleSize    int           `yaml:"max_sample_size" env:"EXTRACTION_MAX_SAMPLE_SIZE" env-default:"10000"`
	PerColumnTimeout time.Duration `yaml:"per_column_timeout" env:"EXTRACTION_PER_COLUMN_TIMEOUT" env-default:"5s"`
	QueryTimeout     time.Duration `yaml:"query_timeout" env:"EXTRACTION_QUERY_TIMEOUT" env-default:"30s"`
	SamplingMode     string        `yaml:"sampling_mode" env:"EXTRACTION_SAMPLING_MODE" env-default:"head"`
	Seed             int64         `yaml:"seed" env:"EXTRACTION_SEED" env-default:"0"`
	Concurrency      int           `yaml:"concurrency" env:"EXTRACTION_CONCURRENCY" env-default:"4"`
	EnabledMetrics   []string      `yaml:"enabled_metrics" env:"EXTRACTION_METRICS" env-separator:","`
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle source pools are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// PoolMaxConns is the maximum number of connections per source pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"5"`
	// PoolMinConns is the minimum number of connections per source pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"0"`
}

// MetricsConfig controls the Prometheus endpoint served next to MCP.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// SourceConfig is one named source. PasswordEnv names the environment
// variable that holds the password.
type SourceConfig struct {
	Name        string            `yaml:"name"`
	Kind        string            `yaml:"kind"`
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	Database    string            `yaml:"database"`
	User        string            `yaml:"user"`
	PasswordEnv string            `yaml:"password_env"`
	Options     map[string]string `yaml:"options"`

	Password string `yaml:"-"` // Resolved from PasswordEnv at load time
}

// Load reads configuration from path (config.yaml when empty) with
// environment variable overrides. A missing file is not an error: defaults
// and environment variables are used instead.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.resolveSources(); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}

	return cfg, nil
}

// resolveSources validates source entries and reads their passwords.
func (c *Config) resolveSources() error {
	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Name == "" {
			return fmt.Errorf("source #%d has no name", i+1)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true

		if src.PasswordEnv != "" {
			pw, ok := os.LookupEnv(src.PasswordEnv)
			if !ok {
				return fmt.Errorf("source %q: environment variable %s is not set", src.Name, src.PasswordEnv)
			}
			src.Password = pw
		}
	}
	return nil
}

// Source looks up a named source.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// SourceNames lists configured source names in file order.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		names = append(names, s.Name)
	}
	return names
}

// Descriptor converts the source into a connection descriptor, applying the
// extraction query timeout and resolving localhost when running in Docker.
func (s SourceConfig) Descriptor(queryTimeout time.Duration) models.ConnectionDescriptor {
	opts := make(map[string]string, len(s.Options))
	for k, v := range s.Options {
		opts[strings.ToLower(k)] = v
	}
	return models.ConnectionDescriptor{
		Kind:         models.ParseSourceKind(s.Kind),
		Host:         ResolveHostForDocker(s.Host),
		Port:         s.Port,
		Database:     s.Database,
		Credentials:  models.Credentials{Username: s.User, Password: s.Password},
		Options:      opts,
		QueryTimeout: queryTimeout,
	}
}

// Profiling returns the profiling defaults for a run.
func (c ExtractionConfig) Profiling() models.ProfilingConfig {
	return models.ProfilingConfig{
		SampleSize:       c.SampleSize,
		PerColumnTimeout: c.PerColumnTimeout,
		EnabledMetrics:   append([]string(nil), c.EnabledMetrics...),
		SamplingMode:     models.SamplingMode(strings.ToLower(c.SamplingMode)),
		Seed:             c.Seed,
		Concurrency:      c.Concurrency,
	}.Normalize(c.MaxSampleSize)
}
