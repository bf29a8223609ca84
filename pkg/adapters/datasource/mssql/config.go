package mssql

import (
	"fmt"
	"strconv"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// Authentication methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod determines which authentication to use: "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields. The client secret is the descriptor's password.
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromDescriptor creates a Config from a connection descriptor. Recognized
// options: auth_method, tenant_id, client_id, encrypt, trust_server_certificate,
// connection_timeout.
func FromDescriptor(desc models.ConnectionDescriptor) (*Config, error) {
	cfg := &Config{
		Host:              desc.Host,
		Port:              desc.Port,
		Database:          desc.Database,
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}

	switch v := desc.Option("encrypt", "true"); v {
	case "true", "strict":
		cfg.Encrypt = true
	case "false", "disable":
		cfg.Encrypt = false
	default:
		return nil, fmt.Errorf("invalid encrypt option %q", v)
	}
	cfg.TrustServerCertificate = desc.Option("trust_server_certificate", "false") == "true"

	if raw := desc.Option("connection_timeout", ""); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid connection_timeout %q", raw)
		}
		cfg.ConnectionTimeout = secs
	}

	// Auto-detect auth method unless given: a client_id means service principal.
	cfg.AuthMethod = desc.Option("auth_method", "")
	if cfg.AuthMethod == "" {
		if desc.Option("client_id", "") != "" {
			cfg.AuthMethod = AuthServicePrincipal
		} else {
			cfg.AuthMethod = AuthSQL
		}
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		cfg.Username = desc.Credentials.Username
		cfg.Password = desc.Credentials.Password
	case AuthServicePrincipal:
		cfg.TenantID = desc.Option("tenant_id", "")
		cfg.ClientID = desc.Option("client_id", desc.Credentials.Username)
		cfg.ClientSecret = desc.Credentials.Password
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	return nil
}
