// Package scraper seeds the movie catalog from a public "now playing" page.
// Each detail page is fetched and stored independently; a failure is logged
// and the run moves on.
package scraper

import (
	"bytes"
	"context"
	"net/url"
	"unicode/utf8"

	"github.com/iliyamo/bandou-movie/internal/fetch"
	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/metrics"
	"github.com/iliyamo/bandou-movie/internal/model"
)

// MaxStarringLen mirrors the width of movies.starring.
const MaxStarringLen = 255

// Store is the slice of the movie repository the scraper writes through.
type Store interface {
	InsertIfTitleAbsent(ctx context.Context, m *model.Movie) (bool, error)
}

type Getter interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// Summary counts the outcome of one run.
type Summary struct {
	Found    int
	Inserted int
	Existing int
	Skipped  int
	Failed   int
}

type Scraper struct {
	client  Getter
	store   Store
	listURL string
}

func New(client Getter, store Store, listURL string) *Scraper {
	if client == nil || store == nil {
		panic("nil dependency passed to scraper.New")
	}
	return &Scraper{client: client, store: store, listURL: listURL}
}

// Run fetches the listing and every detail page it links to.  Only a
// failure to load the listing itself is returned.
func (s *Scraper) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	base, err := url.Parse(s.listURL)
	if err != nil {
		return sum, err
	}
	res, err := s.client.Get(ctx, s.listURL)
	if err != nil {
		return sum, err
	}
	links, err := ParseListing(bytes.NewReader(res.Body), base)
	if err != nil {
		return sum, err
	}
	sum.Found = len(links)
	logging.Info().Int("links", len(links)).Str("url", s.listURL).Msg("listing parsed")

	for _, link := range links {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		outcome := s.one(ctx, link)
		metrics.ScrapedMovies.WithLabelValues(outcome).Inc()
		switch outcome {
		case "inserted":
			sum.Inserted++
		case "existing":
			sum.Existing++
		case "skipped":
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	return sum, nil
}

func (s *Scraper) one(ctx context.Context, link string) string {
	log := logging.Logger().With().Str("url", link).Logger()
	res, err := s.client.Get(ctx, link)
	if err != nil {
		log.Warn().Err(err).Msg("detail fetch failed")
		return "failed"
	}
	m, err := ParseDetail(bytes.NewReader(res.Body))
	if err != nil {
		log.Warn().Err(err).Msg("detail parse failed")
		return "failed"
	}
	if utf8.RuneCountInString(m.Starring) > MaxStarringLen {
		log.Info().Str("title", m.Title).Msg("starring too long, skipped")
		return "skipped"
	}
	inserted, err := s.store.InsertIfTitleAbsent(ctx, m)
	if err != nil {
		log.Error().Err(err).Str("title", m.Title).Msg("insert failed")
		return "failed"
	}
	if !inserted {
		log.Debug().Str("title", m.Title).Msg("already in catalog")
		return "existing"
	}
	log.Info().Str("title", m.Title).Uint64("movie_id", m.ID).Msg("movie added")
	return "inserted"
}
