package main

import (
	"database/sql"
	"fmt"
	"io"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/dbconfig"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/events"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/store"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setupStore(cfg *Config) (session.Store, io.Closer, error) {
	if cfg.store == "memory" {
		log.Info().Msg("using in-memory session store")
		return store.NewMemory(), nopCloser{}, nil
	}

	kvCfg := store.DefaultKVConfig()
	kvCfg.URL = cfg.natsURL
	kvCfg.Bucket = cfg.kvBucket
	kv, err := store.NewKV(kvCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	log.Info().Str("nats_url", cfg.natsURL).Str("bucket", cfg.kvBucket).Msg("using JetStream session store")
	return kv, kv, nil
}

func setupPublisher(cfg *Config) (events.Publisher, io.Closer, error) {
	if !cfg.events {
		return events.NewLogPublisher(), nopCloser{}, nil
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.natsURL
	announcer, err := events.NewAnnouncer(jsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create event announcer: %w", err)
	}
	return announcer, announcer, nil
}

func setupDatabase(dbCfg dbconfig.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return database, nil
}
