package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/jigsaw/go/internal/dbconfig"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/imagesource"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard/db"
)

func main() {
	path := "go/internal/assets/catalog.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	catalog, err := imagesource.LoadCatalog(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	var upserted, errs int
	for _, p := range catalog.Puzzles {
		_, err := pool.Exec(ctx, db.UpsertPuzzleSQL,
			p.ID, p.Title, p.ImageURL, p.Width, p.Height, p.Premium,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting puzzle %s: %v\n", p.ID, err)
			errs++
			continue
		}
		upserted++
	}

	fmt.Printf("Catalog seed complete: %d total, %d upserted, %d errors\n",
		len(catalog.Puzzles), upserted, errs)
	if errs > 0 {
		os.Exit(1)
	}
}
