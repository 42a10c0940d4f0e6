// Command scraper seeds the movie catalog from the now-playing page.
//
//	go run ./cmd/scraper -url https://movie.douban.com/cinema/nowplaying/beijing/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/bandou-movie/internal/config"
	"github.com/iliyamo/bandou-movie/internal/database"
	"github.com/iliyamo/bandou-movie/internal/fetch"
	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/scraper"
)

const defaultListURL = "https://movie.douban.com/cinema/nowplaying/"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	listURL := flag.String("url", envOr("SCRAPER_LIST_URL", defaultListURL), "now-playing listing to crawl")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run deadline")
	migrate := flag.Bool("migrate", false, "apply the schema before scraping")
	flag.Parse()

	logging.Init(logging.Config{Level: envOr("LOG_LEVEL", "info"), Format: envOr("LOG_FORMAT", "console")})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	dbc := config.LoadDBConfig()
	db, err := database.Open(dbc.User, dbc.Pass, dbc.Host, dbc.Port, dbc.Name)
	if err != nil {
		logging.Error().Err(err).Msg("mysql unavailable")
		return err
	}
	defer db.Close()
	if *migrate {
		if err := database.Migrate(ctx, db); err != nil {
			logging.Error().Err(err).Msg("schema migration failed")
			return err
		}
	}

	client := fetch.New(fetch.Options{Name: "scraper", Timeout: 15 * time.Second})
	sum, err := scraper.New(client, repository.NewMovieRepo(db), *listURL).Run(ctx)
	ev := logging.Info()
	if err != nil {
		ev = logging.Error().Err(err)
	}
	ev.Int("found", sum.Found).
		Int("inserted", sum.Inserted).
		Int("existing", sum.Existing).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Msg("scrape finished")
	return err
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
