package store

import (
	"fmt"
)

// New creates a Store from the configuration. An empty or missing type
// defaults to the in-memory backend.
func New(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	switch cfg.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil

	case TypeBadger:
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("badger store requires data_dir")
		}
		return NewBadgerStore(cfg.DataDir)

	case TypePostgres:
		if cfg.ConnectionString == "" {
			return nil, fmt.Errorf("postgres store requires connection_string")
		}
		return NewPostgresStore(cfg.ConnectionString, cfg.MaxConnections)

	case TypeNeo4j:
		if cfg.ConnectionString == "" {
			return nil, fmt.Errorf("neo4j store requires connection_string")
		}
		return NewNeo4jStore(cfg.ConnectionString, cfg.Username, cfg.Password, cfg.Database)

	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: memory, badger, postgres, neo4j)", cfg.Type)
	}
}
