package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr    string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath      string     `env:"DB_PATH" envDefault:"data/riftbound.db"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	StoreDriver string     `env:"STORE_DRIVER" envDefault:"sqlite"`
	SPADir      string     `env:"SPA_DIR"`

	AdminEmail      string        `env:"ADMIN_EMAIL"`
	AdminPassword   string        `env:"ADMIN_PASSWORD"`
	AdminSessionTTL time.Duration `env:"ADMIN_SESSION_TTL" envDefault:"8h"`

	KeepAlive         time.Duration `env:"KEEP_ALIVE" envDefault:"15s"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"5m"`
	SettleDelay       time.Duration `env:"SETTLE_DELAY" envDefault:"1s"`
	WinThreshold      int           `env:"WIN_THRESHOLD" envDefault:"8"`
	LobbyTTL          time.Duration `env:"LOBBY_TTL" envDefault:"10m"`
	ResolveCloseDelay time.Duration `env:"RESOLVE_CLOSE_DELAY" envDefault:"100ms"`
	ScanRetention     time.Duration `env:"SCAN_RETENTION" envDefault:"720h"`
	PruneInterval     time.Duration `env:"PRUNE_INTERVAL" envDefault:"6h"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.StoreDriver != "sqlite" && cfg.StoreDriver != "memory" {
		return nil, fmt.Errorf("STORE_DRIVER must be sqlite or memory, got %q", cfg.StoreDriver)
	}
	if cfg.WinThreshold <= 0 {
		return nil, fmt.Errorf("WIN_THRESHOLD must be positive, got %d", cfg.WinThreshold)
	}
	return &cfg, nil
}
