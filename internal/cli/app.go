package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"kinsync/internal/apply"
	"kinsync/internal/compare"
	"kinsync/internal/discover"
	"kinsync/internal/identity"
	"kinsync/internal/logging"
	"kinsync/internal/model"
	"kinsync/internal/scrape"
	"kinsync/internal/store"
)

// app is the wired-up application every command runs against.
type app struct {
	cfg        *model.Config
	log        *slog.Logger
	store      *store.Store
	resolver   *identity.Resolver
	drivers    scrape.Registry
	engine     *compare.Engine
	apply      *apply.Service
	discoverer *discover.Discoverer
}

// newApp loads configuration, opens the database, and wires the engine.
// Callers must Close it.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if verbose {
		logOpts.Level = "debug"
	}
	log, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	memoryTTL := cfg.Cache.MemoryTTL
	if !cfg.Cache.Enabled {
		// a nanosecond TTL makes every cached snapshot expire before the
		// next read, so lookups always hit SQLite
		memoryTTL = time.Nanosecond
	}
	s, err := store.Open(cfg.DBPath, memoryTTL)
	if err != nil {
		return nil, err
	}

	drivers, err := buildDrivers(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	resolver := identity.NewResolver(s)
	schema := compare.DefaultSchema()
	return &app{
		cfg:        cfg,
		log:        log,
		store:      s,
		resolver:   resolver,
		drivers:    drivers,
		engine:     compare.NewEngine(s, drivers, resolver, schema, log),
		apply:      apply.NewService(s, resolver, schema, log),
		discoverer: discover.NewDiscoverer(s, resolver, drivers, cfg, log),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// loadConfig layers the config file and KINSYNC_* environment over the
// defaults, then validates the result.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildDrivers constructs an HTTP driver per configured provider.
func buildDrivers(cfg *model.Config) (scrape.Registry, error) {
	drivers := make(scrape.Registry, len(cfg.Providers))
	for name, pcfg := range cfg.Providers {
		driver, err := scrape.NewHTTPDriver(model.Provider(name), pcfg, cfg.HTTP)
		if err != nil {
			return nil, err
		}
		drivers[model.Provider(name)] = driver
	}
	return drivers, nil
}
