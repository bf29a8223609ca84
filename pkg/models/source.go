package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SourceKind identifies the type of relational source a descriptor points at.
type SourceKind string

const (
	SourceKindPostgres SourceKind = "postgres"
	SourceKindMySQL    SourceKind = "mysql"
	SourceKindSQLite   SourceKind = "sqlite"
	SourceKindMSSQL    SourceKind = "mssql"
	SourceKindMongo    SourceKind = "mongo"
)

var sourceKindAliases = map[string]SourceKind{
	"postgres":   SourceKindPostgres,
	"postgresql": SourceKindPostgres,
	"pg":         SourceKindPostgres,
	"mysql":      SourceKindMySQL,
	"mariadb":    SourceKindMySQL,
	"sqlite":     SourceKindSQLite,
	"sqlite3":    SourceKindSQLite,
	"mssql":      SourceKindMSSQL,
	"sqlserver":  SourceKindMSSQL,
	"mongo":      SourceKindMongo,
	"mongodb":    SourceKindMongo,
}

// ParseSourceKind normalizes a user supplied kind. Unknown names are returned
// lower-cased as-is so the adapter registry can report them as unsupported.
func ParseSourceKind(s string) SourceKind {
	key := strings.ToLower(strings.TrimSpace(s))
	if kind, ok := sourceKindAliases[key]; ok {
		return kind
	}
	return SourceKind(key)
}

func (k SourceKind) String() string { return string(k) }

// Credentials holds resolved secrets for a connection.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ConnectionDescriptor describes how to reach a source. It is treated as an
// immutable value: helpers return copies and never modify the receiver.
type ConnectionDescriptor struct {
	Kind         SourceKind        `json:"kind"`
	Host         string            `json:"host,omitempty"`
	Port         int               `json:"port,omitempty"`
	Database     string            `json:"database"`
	Credentials  Credentials       `json:"credentials"`
	Options      map[string]string `json:"options,omitempty"`
	QueryTimeout time.Duration     `json:"query_timeout,omitempty"`
}

// RedactedText replaces secrets in descriptors that leave the pipeline.
const RedactedText = "[REDACTED]"

// Validate checks that the fields required for the descriptor's kind are set.
func (d ConnectionDescriptor) Validate() error {
	if d.Kind == "" {
		return fmt.Errorf("source kind is required")
	}
	if strings.TrimSpace(d.Database) == "" {
		return fmt.Errorf("database is required")
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("port %d out of range", d.Port)
	}
	// File based sources have no network endpoint.
	if d.Kind == SourceKindSQLite {
		return nil
	}
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("host is required for %s sources", d.Kind)
	}
	return nil
}

// Redacted returns a copy with the password replaced.
func (d ConnectionDescriptor) Redacted() ConnectionDescriptor {
	out := d
	if out.Credentials.Password != "" {
		out.Credentials.Password = RedactedText
	}
	if d.Options != nil {
		out.Options = make(map[string]string, len(d.Options))
		for k, v := range d.Options {
			out.Options[k] = v
		}
	}
	return out
}

// Option returns the named option or def when it is unset.
func (d ConnectionDescriptor) Option(name, def string) string {
	if v, ok := d.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// PoolKey fingerprints the descriptor without secrets so pooled connections
// can be shared between runs against the same source and user. Options are
// part of the key, sorted, so a TLS setting never reuses another's pool.
func (d ConnectionDescriptor) PoolKey() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	b.WriteString("://")
	b.WriteString(d.Credentials.Username)
	b.WriteString("@")
	b.WriteString(d.Host)
	if d.Port > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(d.Port))
	}
	b.WriteString("/")
	b.WriteString(d.Database)
	if len(d.Options) > 0 {
		q := make(url.Values, len(d.Options))
		for k, v := range d.Options {
			q.Set(k, v)
		}
		b.WriteString("?")
		b.WriteString(q.Encode())
	}
	return b.String()
}
