package service

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/bandou-movie/internal/category"
	"github.com/iliyamo/bandou-movie/internal/metrics"
	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/repository"
)

// Recommendation sizing.
const (
	PerCategory    = 2
	RecommendLimit = 10
)

const (
	messageAnonymous = "登录后可获得基于您评分历史的个性化推荐，当前为各类别高分电影"
	messageColdStart = "您还没有评分记录，先为看过的电影打分吧，当前为各类别高分电影"
)

// Recommendation is the engine's answer.  Personal is true when it was
// derived from the caller's rating history; the HTTP layer then returns the
// bare list.
type Recommendation struct {
	Movies    []MovieView
	Personal  bool
	Anonymous bool
	Message   string
}

// Recommender picks movies for a viewer.
type Recommender struct {
	movies *repository.MovieRepo
	urls   URLResolver
}

func NewRecommender(movies *repository.MovieRepo, urls URLResolver) *Recommender {
	if movies == nil {
		panic("nil repository passed to NewRecommender")
	}
	return &Recommender{movies: movies, urls: urls}
}

// Recommend serves anonymous viewers when userID is nil.
func (r *Recommender) Recommend(ctx context.Context, userID *uint64) (Recommendation, error) {
	if userID == nil {
		movies, err := r.fallback(ctx)
		if err != nil {
			return Recommendation{}, err
		}
		metrics.RecommendationsServed.WithLabelValues("anonymous").Inc()
		return Recommendation{Movies: movies, Anonymous: true, Message: messageAnonymous}, nil
	}

	rated, err := r.movies.RatedCategories(ctx, *userID)
	if err != nil {
		return Recommendation{}, err
	}
	if len(rated) == 0 {
		movies, err := r.fallback(ctx)
		if err != nil {
			return Recommendation{}, err
		}
		metrics.RecommendationsServed.WithLabelValues("cold_start").Inc()
		return Recommendation{Movies: movies, Message: messageColdStart}, nil
	}

	candidates, err := r.movies.UnratedBy(ctx, *userID)
	if err != nil {
		return Recommendation{}, err
	}
	metrics.RecommendationsServed.WithLabelValues("history").Inc()
	picked := MatchHistory(candidates, rated, RecommendLimit)
	return Recommendation{Movies: NewMovieViews(picked, r.urls), Personal: true}, nil
}

func (r *Recommender) fallback(ctx context.Context) ([]MovieView, error) {
	all, err := r.movies.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewMovieViews(TopRatedByCategory(all, PerCategory, RecommendLimit), r.urls), nil
}

// byScore orders scored movies first, higher score first, then by id.
func byScore(ms []model.Movie) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i].Score, ms[j].Score
		switch {
		case a != nil && b != nil && *a != *b:
			return *a > *b
		case (a == nil) != (b == nil):
			return a != nil
		}
		return ms[i].ID < ms[j].ID
	})
}

// TopRatedByCategory walks the distinct raw category values in order of
// first appearance by movie id and takes the perCategory best movies whose
// category equals that value.  It stops once limit movies are collected.
func TopRatedByCategory(movies []model.Movie, perCategory, limit int) []model.Movie {
	sorted := append([]model.Movie(nil), movies...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var order []string
	groups := map[string][]model.Movie{}
	for _, m := range sorted {
		key := strings.TrimSpace(m.Category)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}

	out := make([]model.Movie, 0, limit)
	for _, key := range order {
		g := groups[key]
		byScore(g)
		if len(g) > perCategory {
			g = g[:perCategory]
		}
		out = append(out, g...)
		if len(out) >= limit {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MatchHistory keeps the candidates sharing at least one normalised
// category component with the rated movies, best score first, up to limit.
// Matching is per component, not on the whole value: a rated "动作/喜剧"
// admits a candidate filed under "动作" alone.
func MatchHistory(candidates []model.Movie, ratedCategories []string, limit int) []model.Movie {
	set := map[string]struct{}{}
	for _, raw := range ratedCategories {
		for _, c := range category.Split(raw) {
			set[c] = struct{}{}
		}
	}
	out := make([]model.Movie, 0, limit)
	for _, m := range candidates {
		if category.Intersects(m.Category, set) {
			out = append(out, m)
		}
	}
	byScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
