package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"surat/internal/config"
	"surat/internal/db"
	"surat/internal/engine"
	"surat/internal/migrate"
	"surat/internal/objstore"
)

// App holds the opened database and the engine wired from one config.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Logger *zap.Logger
}

// Open opens and migrates the database, then wires the engine with the
// configured template source and result store.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	e.Templates = templateSource(cfg, logger)
	e.Results = resultSink(cfg, logger)
	return &App{Config: cfg, DB: conn, Engine: e, Logger: logger}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func templateSource(cfg *config.Config, logger *zap.Logger) objstore.Source {
	s := cfg.Templates
	if s.Backend == config.BackendHTTP {
		return objstore.NewHTTP(httpConfig(s, cfg.Storage.ServiceKey), logger.Named("templates"))
	}
	return objstore.Dir{Root: s.Dir, PublicURL: s.PublicURL}
}

func resultSink(cfg *config.Config, logger *zap.Logger) objstore.Sink {
	s := cfg.Results
	if s.Backend == config.BackendHTTP {
		return objstore.NewHTTP(httpConfig(s, cfg.Storage.ServiceKey), logger.Named("results"))
	}
	return objstore.Dir{Root: s.Dir, PublicURL: s.PublicURL}
}

func httpConfig(s config.StoreConfig, serviceKey string) objstore.HTTPConfig {
	return objstore.HTTPConfig{
		BaseURL:    s.BaseURL,
		Bucket:     s.Bucket,
		ServiceKey: serviceKey,
		PublicURL:  s.PublicURL,
		Timeout:    s.Timeout,
	}
}
