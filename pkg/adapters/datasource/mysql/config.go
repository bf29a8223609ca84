package mysql

import (
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "false", "true", "skip-verify", "preferred"
	// SessionReadOnly sets transaction_read_only=1 on every connection.
	// MariaDB before 10.6 only knows tx_read_only and needs this off.
	SessionReadOnly bool
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromDescriptor creates a Config from a connection descriptor. Recognized
// options: tls, session_read_only, connect_timeout (seconds).
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
		TLS:             desc.Option("tls", "preferred"),
		SessionReadOnly: desc.Option("session_read_only", "true") == "true",
		ConnectTimeout:  10 * time.Second,
		QueryTimeout:    desc.QueryTimeout,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}

	switch cfg.TLS {
	case "false", "true", "skip-verify", "preferred":
	default:
		return nil, fmt.Errorf("invalid tls option %q", cfg.TLS)
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

// driverConfig builds the go-sql-driver configuration. Times are parsed into
// time.Time in UTC.
func (c *Config) driverConfig() *mysqldriver.Config {
	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Timeout = c.ConnectTimeout
	dc.TLSConfig = c.TLS
	if c.SessionReadOnly {
		dc.Params = map[string]string{"transaction_read_only": "1"}
	}
	return dc
}
