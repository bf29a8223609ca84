package sqlite

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// Config contains SQLite-specific connection options.
type Config struct {
	// Path is the database file. Database in the descriptor may be a plain
	// path or a file: URI.
	Path         string
	Name         string
	QueryTimeout time.Duration
}

// FromDescriptor creates a Config from a connection descriptor.
func FromDescriptor(desc models.ConnectionDescriptor) (*Config, error) {
	path, err := databasePath(desc.Database)
	if err != nil {
		return nil, err
	}
	return &Config{
		Path:         path,
		Name:         desc.Option("name", databaseName(path)),
		QueryTimeout: desc.QueryTimeout,
	}, nil
}

func databasePath(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("database path is required")
	}
	if dsn == ":memory:" || dsn == "file::memory:" || strings.Contains(dsn, "mode=memory") {
		return "", fmt.Errorf("in-memory SQLite databases are not supported")
	}
	if !strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse sqlite URI: %w", err)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return "", fmt.Errorf("sqlite URI %q has no path", dsn)
	}
	return path, nil
}

// databaseName derives the logical database name from the file name.
func databaseName(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." {
		return "sqlite"
	}
	return base
}

// readOnlyURI returns a file: URI that opens the database read-only.
func (c *Config) readOnlyURI() string {
	u := url.URL{Scheme: "file", Opaque: c.Path}
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", "query_only(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
