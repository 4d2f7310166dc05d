package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/jigsaw/go/internal/dbconfig"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/gateway"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/imagesource"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard"
)

func serve(ctx context.Context, cfg *Config) error {
	if cfg.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	catalog, err := imagesource.LoadCatalog(cfg.catalog)
	if err != nil {
		return err
	}

	sessions, closeStore, err := setupStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	publisher, closePublisher, err := setupPublisher(cfg)
	if err != nil {
		return err
	}
	defer closePublisher.Close()

	gwCfg := gateway.DefaultConfig()
	gwCfg.PublicURL = cfg.baseURL()
	gwCfg.AllowedOrigins = cfg.allowedOrigins

	deps := gateway.Deps{
		Store:     sessions,
		Resolver:  imagesource.NewCatalogResolver(catalog, cfg.imageTimeout),
		Publisher: publisher,
	}

	var (
		svc      *gateway.Service
		listener *leaderboard.Listener
	)
	if cfg.leaderboard {
		dbCfg := dbconfig.NewConfigFromEnv()
		database, err := setupDatabase(dbCfg)
		if err != nil {
			return err
		}
		defer database.Close()
		deps.Scores = leaderboard.NewRepository(database)

		lCfg := leaderboard.DefaultListenerConfig()
		lCfg.DatabaseURL = dbCfg.DSN()
		// svc is set before the listener starts
		listener, err = leaderboard.NewListener(lCfg, func(puzzleID string) {
			svc.LeaderboardUpdated(puzzleID)
		})
		if err != nil {
			return err
		}
	}

	svc = gateway.NewService(gwCfg, deps)

	server := &http.Server{
		Addr:        cfg.addr(),
		Handler:     h2c.NewHandler(svc.Handler(gwCfg.AllowedOrigins), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	svcCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcDone := make(chan struct{})
	go func() {
		defer close(svcDone)
		if err := svc.Start(svcCtx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	if listener != nil {
		go func() {
			if err := listener.Start(svcCtx); err != nil {
				log.Error().Err(err).Msg("leaderboard listener stopped")
			}
		}()
	}

	if cfg.mdns {
		advert, err := gateway.Advertise(cfg.port, gwCfg.PublicURL)
		if err != nil {
			log.Warn().Err(err).Msg("mDNS advertisement disabled")
		} else {
			defer advert.Shutdown()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("public_url", gwCfg.PublicURL).
			Str("store", cfg.store).
			Int("puzzles", len(catalog.Puzzles)).
			Msg("HTTP server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			cancel()
			<-svcDone
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	<-svcDone

	log.Info().Msg("jigsaw gateway shutdown complete")
	return nil
}

func discover(ctx context.Context, out io.Writer, timeout time.Duration) error {
	found, err := gateway.Browse(ctx, timeout)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(out, "no gateways found")
		return nil
	}
	for _, addr := range found {
		fmt.Fprintln(out, addr)
	}
	return nil
}
