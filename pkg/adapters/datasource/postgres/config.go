package postgres

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string // "disable", "prefer", "require", "verify-ca", "verify-full"
	ApplicationName string
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "prefer"
}

// FromDescriptor creates a Config from a connection descriptor. Recognized
// options: sslmode, application_name, connect_timeout (seconds).
func FromDescriptor(desc models.ConnectionDescriptor) (*Config, error) {
	if desc.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if desc.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	cfg := &Config{
		Host:            desc.Host,
		Port:            desc.Port,
		User:            desc.Credentials.Username,
		Password:        desc.Credentials.Password,
		Database:        desc.Database,
		SSLMode:         desc.Option("sslmode", DefaultSSLMode()),
		ApplicationName: desc.Option("application_name", "sourcesense"),
		ConnectTimeout:  10 * time.Second,
		QueryTimeout:    desc.QueryTimeout,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}

	switch cfg.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return nil, fmt.Errorf("invalid sslmode %q", cfg.SSLMode)
	}

	if raw := desc.Option("connect_timeout", ""); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid connect_timeout %q", raw)
		}
		cfg.ConnectTimeout = time.Duration(secs) * time.Second
	}

	return cfg, nil
}
