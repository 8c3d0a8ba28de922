package cache

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Drivers accepted by OpenStore.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// StoreConfig selects and configures a Store.
type StoreConfig struct {
	Driver        string
	Path          string // file path or SQLite DSN
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// OpenStore opens the store named by cfg.Driver.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverFile:
		if cfg.Path == "" {
			return nil, eris.New("cache: file driver requires a path")
		}
		s, err := OpenFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, eris.New("cache: sqlite driver requires a path")
		}
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("cache: postgres driver requires a database_url")
		}
		s, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return nil, eris.New("cache: redis driver requires redis_addr")
		}
		s, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}
