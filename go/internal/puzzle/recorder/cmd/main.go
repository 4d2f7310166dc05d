package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/dbconfig"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/events"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("JIGSAW_VERBOSE") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// DB config
	cfg := dbconfig.NewConfigFromEnv()
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	repo := leaderboard.NewRepository(db)

	consumerCfg := events.DefaultConsumerConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		consumerCfg.URL = url
	}
	consumer, err := events.NewConsumer(consumerCfg, events.RecordCompletions(repo))
	if err != nil {
		log.Fatal().Err(err).Msg("create completion consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("consumer", consumerCfg.ConsumerName).Msg("starting leaderboard recorder")
		errCh <- consumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		<-errCh
	case err := <-errCh:
		log.Error().Err(err).Msg("consumer exited unexpectedly")
	}

	if err := consumer.Stop(); err != nil {
		log.Error().Err(err).Msg("stop consumer")
	}
	log.Info().Msg("leaderboard recorder stopped")
}
