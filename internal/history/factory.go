package history

import (
	"fmt"
	"strings"
)

// Config selects and parameterizes one history sink.
type Config struct {
	Type  string `toml:"type" mapstructure:"type"` // "sqlite", "postgres", "clickhouse"
	DSN   string `toml:"dsn" mapstructure:"dsn"`   // path for sqlite, DSN/addr otherwise
	Table string `toml:"table" mapstructure:"table"`
}

// NewSink constructs the sink described by c.
func NewSink(c Config) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "sqlite":
		return NewSQLite(c.DSN)
	case "postgres", "postgresql":
		return NewPostgres(c.DSN)
	case "clickhouse":
		return NewClickHouse(c.DSN, c.Table)
	case "":
		return nil, fmt.Errorf("history sink type is required")
	default:
		return nil, fmt.Errorf("unknown history sink type: %q", c.Type)
	}
}
