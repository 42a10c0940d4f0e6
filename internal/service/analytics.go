package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/iliyamo/bandou-movie/internal/category"
	"github.com/iliyamo/bandou-movie/internal/model"
	"github.com/iliyamo/bandou-movie/internal/repository"
)

// NoScoreBucket labels movies without a score.
const NoScoreBucket = "无评分"

// ScoreBuckets are half-open [n, n+1) ranges; 5.0 lands in the last one.
var ScoreBuckets = []string{"0-1", "1-2", "2-3", "3-4", "4-5"}

// TrendDays is the look-back of RatingTrend; the series has TrendDays+1
// points, both ends included.
const TrendDays = 7

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type BucketCount struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

type CategoryDistribution struct {
	Category     string        `json:"category"`
	Distribution []BucketCount `json:"distribution"`
}

type TrendPoint struct {
	Date      string   `json:"date"`
	AvgRating *float64 `json:"avg_rating"`
}

// Analytics computes the admin dashboard figures.
type Analytics struct {
	movies  *repository.MovieRepo
	ratings *repository.RatingRepo
	now     func() time.Time
}

func NewAnalytics(movies *repository.MovieRepo, ratings *repository.RatingRepo) *Analytics {
	if movies == nil || ratings == nil {
		panic("nil repository passed to NewAnalytics")
	}
	return &Analytics{movies: movies, ratings: ratings, now: func() time.Time { return time.Now().UTC() }}
}

func (a *Analytics) CategoryStats(ctx context.Context) ([]CategoryCount, error) {
	all, err := a.movies.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return CountCategories(all), nil
}

func (a *Analytics) RatingDistribution(ctx context.Context) ([]CategoryDistribution, error) {
	all, err := a.movies.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return DistributeScores(all), nil
}

func (a *Analytics) MovieTypes(ctx context.Context) ([]string, error) {
	all, err := a.movies.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return DistinctTypes(all), nil
}

// RatingTrend returns the daily series for movieID ending today.
func (a *Analytics) RatingTrend(ctx context.Context, movieID uint64) ([]TrendPoint, error) {
	m, err := a.movies.GetByID(ctx, movieID)
	if err != nil {
		return nil, err
	}
	today := truncateDay(a.now())
	start := today.AddDate(0, 0, -TrendDays)

	rows, err := a.ratings.DailyAverages(ctx, movieID, start, today)
	if err != nil {
		return nil, err
	}
	daily := make(map[string]float64, len(rows))
	for _, r := range rows {
		daily[r.Day] = r.Avg
	}

	var history *float64
	if m.Score == nil && len(daily) == 0 {
		if history, err = a.ratings.LatestDayAverageBefore(ctx, movieID, start); err != nil {
			return nil, err
		}
	}
	return BuildTrend(today, m.Score, daily, history), nil
}

// CountCategories counts movies per normalised component, most common
// first, ties by name.
func CountCategories(movies []model.Movie) []CategoryCount {
	counts := map[string]int{}
	for _, m := range movies {
		for _, c := range category.Split(m.Category) {
			counts[c]++
		}
	}
	out := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// bucketOf returns the index into ScoreBuckets for s.
func bucketOf(s float64) int {
	i := int(math.Floor(s))
	if i < 0 {
		return 0
	}
	if i >= len(ScoreBuckets) {
		return len(ScoreBuckets) - 1
	}
	return i
}

// DistributeScores partitions each category's movies into ScoreBuckets plus
// NoScoreBucket.  Categories follow CountCategories order.
func DistributeScores(movies []model.Movie) []CategoryDistribution {
	hist := map[string][]int{}
	for _, m := range movies {
		for _, c := range category.Split(m.Category) {
			h, ok := hist[c]
			if !ok {
				h = make([]int, len(ScoreBuckets)+1)
				hist[c] = h
			}
			if m.Score == nil {
				h[len(ScoreBuckets)]++
			} else {
				h[bucketOf(*m.Score)]++
			}
		}
	}
	out := make([]CategoryDistribution, 0, len(hist))
	for _, cc := range CountCategories(movies) {
		h := hist[cc.Category]
		dist := make([]BucketCount, 0, len(h))
		for i, label := range ScoreBuckets {
			dist = append(dist, BucketCount{Range: label, Count: h[i]})
		}
		dist = append(dist, BucketCount{Range: NoScoreBucket, Count: h[len(ScoreBuckets)]})
		out = append(out, CategoryDistribution{Category: cc.Category, Distribution: dist})
	}
	return out
}

// DistinctTypes lists every normalised component, sorted.
func DistinctTypes(movies []model.Movie) []string {
	seen := map[string]struct{}{}
	for _, m := range movies {
		for _, c := range category.Split(m.Category) {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildTrend produces TrendDays+1 points from today-TrendDays to today.
//
// The running value starts from the live score, else the first daily
// average in the window, else history (the latest day before the window).
// With none of those every point is null.  Days with ratings report their
// average, other days carry the running value forward.  Today prefers the
// live score over its own average.
func BuildTrend(today time.Time, live *float64, daily map[string]float64, history *float64) []TrendPoint {
	today = truncateDay(today)
	days := make([]string, TrendDays+1)
	for i := range days {
		days[i] = today.AddDate(0, 0, i-TrendDays).Format("2006-01-02")
	}

	var carry *float64
	switch {
	case live != nil:
		carry = live
	default:
		for _, d := range days {
			if v, ok := daily[d]; ok {
				carry = &v
				break
			}
		}
		if carry == nil {
			carry = history
		}
	}

	out := make([]TrendPoint, 0, len(days))
	if carry == nil {
		for _, d := range days {
			out = append(out, TrendPoint{Date: d})
		}
		return out
	}

	for i, d := range days {
		v, ok := daily[d]
		switch {
		case i == TrendDays && live != nil:
			carry = live
		case ok:
			carry = &v
		}
		out = append(out, TrendPoint{Date: d, AvgRating: rounded(carry)})
	}
	return out
}

func rounded(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := repository.RoundScore(*p)
	return &v
}
