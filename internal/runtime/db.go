package runtime

import (
	"fmt"

	"github.com/mohammad-safakhou/archivist/config"
)

// BuildPostgresDSN constructs a DSN from the application configuration.
func BuildPostgresDSN(cfg *config.Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is nil")
	}
	p := cfg.Storage.Postgres
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("postgres configuration incomplete: %w", err)
	}
	return p.DSN(), nil
}
