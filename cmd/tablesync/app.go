package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"tablesync/internal/config"
	"tablesync/internal/enrich"
	"tablesync/internal/executor"
	"tablesync/internal/pg"
	"tablesync/internal/reconcile"
	"tablesync/internal/reference"
	"tablesync/internal/sqlgen"
)

type app struct {
	cfg     config.Config
	db      *sql.DB
	catalog *pg.Catalog
	syncer  *reconcile.Syncer
}

// open собирает зависимости: конфиг, соединение, каталог схемы, справочники.
func open(g *Globals) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(g.DB); v != "" {
		cfg.DBURL = v
	}
	if v := strings.TrimSpace(g.Schema); v != "" {
		cfg.DBSchema = v
	}
	if cfg.DBURL == "" {
		return nil, fmt.Errorf("database url is not set (dbUrl, TABLESYNC_DB_URL or --db)")
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	db, err := pg.Open(cfg.DBURL, cfg.DBSchema)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	subst, err := reference.LoadCatalog(cfg.SubstitutesDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load substitutes: %w", err)
	}
	log.Printf("substitution domains loaded: %d (%s)", subst.Domains(), cfg.SubstitutesDir)

	catalog := pg.NewCatalog(db, cfg.DBSchema)
	return &app{
		cfg:     cfg,
		db:      db,
		catalog: catalog,
		syncer: &reconcile.Syncer{
			DB:     db,
			Lookup: catalog,
			Options: enrich.Options{
				GenericTable:    cfg.GenericTable,
				GenericIDColumn: cfg.GenericIDColumn,
				QualifierColumn: cfg.QualifierColumn,
			},
			Renderer:  sqlgen.New(sqlgen.Options{QualifierColumn: cfg.QualifierColumn}),
			Binder:    pg.PositionalBinder{},
			Catalog:   subst,
			Fetcher:   executor.HTTPFetcher{},
			Policy:    executor.Policy{Default: pg.NewBackend(timeout)},
			BatchSize: cfg.CommitBatchSize,
		},
	}, nil
}

func (a *app) Close() error { return a.db.Close() }
