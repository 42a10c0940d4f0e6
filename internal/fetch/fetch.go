// Package fetch performs outbound HTTP GETs behind a circuit breaker.  The
// image proxy and the catalog scraper share it; a failed request is reported
// once and never retried.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/metrics"
)

// ErrUpstream wraps every transport failure and non-2xx answer.
var ErrUpstream = errors.New("upstream fetch failed")

// ErrTooLarge is returned when the body exceeds Options.MaxBytes.
var ErrTooLarge = errors.New("upstream body too large")

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Response is a fully read upstream answer.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

type Options struct {
	Name      string        // breaker name, used in logs and metrics
	Timeout   time.Duration // per request
	MaxBytes  int64
	UserAgent string
	// Trip after this many consecutive failures.
	MaxFailures uint32
	// How long the breaker stays open before probing again.
	OpenFor time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "fetch"
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 10 << 20
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.MaxFailures == 0 {
		o.MaxFailures = 5
	}
	if o.OpenFor <= 0 {
		o.OpenFor = 30 * time.Second
	}
	return o
}

// Client is safe for concurrent use.
type Client struct {
	opts Options
	http *http.Client
	cb   *gobreaker.CircuitBreaker[*Response]
}

func New(opts Options) *Client {
	opts = opts.withDefaults()
	metrics.BreakerState.WithLabelValues(opts.Name).Set(0)
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &Client{opts: opts, http: &http.Client{Timeout: opts.Timeout}, cb: cb}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	}
	return 0
}

// Get fetches url.  While the breaker is open it fails immediately with an
// error wrapping ErrUpstream and gobreaker.ErrOpenState.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	resp, err := c.cb.Execute(func() (*Response, error) { return c.do(ctx, url) })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, c.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if int64(len(body)) > c.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	return &Response{Status: res.StatusCode, ContentType: res.Header.Get("Content-Type"), Body: body}, nil
}
