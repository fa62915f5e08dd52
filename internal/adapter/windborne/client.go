// Package windborne fetches balloon observations from the WindBorne
// sensor-data API.
package windborne

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/prepbufr-etl/internal/config"
	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
)

const sourceLabel = "windborne"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrPageLimit       = errors.New("page limit reached")
)

// defaultMaxPages bounds a single fetch so a misbehaving cursor cannot
// loop forever.
const defaultMaxPages = 10000

// Client implements pipeline.Extractor against the observations endpoint.
type Client struct {
	baseURL    string
	clientID   string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	start    time.Time
	end      time.Time
	lookback time.Duration
	maxPages int
	clock    clockwork.Clock

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a sensor-data API client from configuration.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.WindBorneURL, "/"),
		clientID:       cfg.WindBorneClientID,
		apiKey:         cfg.WindBorneAPIKey,
		httpClient:     &http.Client{Timeout: cfg.WindBorneTimeout},
		timeout:        cfg.WindBorneTimeout,
		retryAttempts:  cfg.WindBorneRetryAttempts,
		retryBaseDelay: 200 * time.Millisecond,
		retryMaxDelay:  5 * time.Second,
		start:          cfg.StartTime,
		end:            cfg.EndTime,
		lookback:       cfg.Lookback,
		maxPages:       defaultMaxPages,
		clock:          clockwork.NewRealClock(),
		metrics:        metrics,
		logger:         logger,
	}
}

type page struct {
	Observations []domain.RawObservation `json:"observations"`
	HasNextPage  bool                    `json:"has_next_page"`
	NextSince    int64                   `json:"next_since"`
}

// Window returns the [min, max] time range a fetch covers. Unset bounds
// default to now and now minus the lookback.
func (c *Client) Window() (time.Time, time.Time) {
	end := c.end
	if end.IsZero() {
		end = c.clock.Now().UTC()
	}
	start := c.start
	if start.IsZero() {
		start = end.Add(-c.lookback)
	}
	return start, end
}

// Extract pages through all observations in the fetch window. Records
// that cannot be placed (no platform, position, or time) are dropped and
// duplicates across pages are removed. Running out of pages while the
// API still reports more is an error rather than a silently short fetch.
func (c *Client) Extract(ctx context.Context) ([]domain.Observation, error) {
	minTime, maxTime := c.Window()
	since := minTime.Unix()

	var obs []domain.Observation
	for n := 0; ; n++ {
		if n == c.maxPages {
			c.logger.Error("page limit reached with more pages pending", "pages", n, "since", since)
			return nil, fmt.Errorf("%w: %d pages, next since %d", ErrPageLimit, n, since)
		}
		p, err := c.fetchPage(ctx, since, minTime, maxTime)
		if err != nil {
			return nil, err
		}

		for _, rec := range p.Observations {
			o, err := rec.Observation()
			if err != nil {
				c.metrics.ObservationsRejected.Inc()
				c.logger.Debug("dropping observation", "error", err)
				continue
			}
			obs = append(obs, o)
		}

		c.logger.Debug("fetched observation page", "since", since, "count", len(p.Observations), "has_next_page", p.HasNextPage)

		if !p.HasNextPage {
			break
		}
		if p.NextSince <= since {
			c.logger.Warn("pagination cursor did not advance, stopping", "since", since, "next_since", p.NextSince)
			break
		}
		since = p.NextSince
	}

	obs = domain.Dedup(obs)
	c.logger.Info("observations fetched",
		"count", len(obs),
		"min_time", minTime.Format(time.RFC3339),
		"max_time", maxTime.Format(time.RFC3339),
	)
	return obs, nil
}

func (c *Client) fetchPage(ctx context.Context, since int64, minTime, maxTime time.Time) (page, error) {
	var lastErr error
	delay := c.retryBaseDelay

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.SourceRequests.WithLabelValues(sourceLabel, "retry").Inc()
			if !retry.SleepWithContext(ctx, withJitter(delay)) {
				return page{}, ctx.Err()
			}
			delay = retry.NextBackoff(delay, c.retryMaxDelay)
		}

		p, err := c.callAPI(ctx, since, minTime, maxTime)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return page{}, err
		}
		c.logger.Warn("observation request failed, retrying", "error", err, "attempt", attempt+1)
	}

	return page{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *Client) callAPI(ctx context.Context, since int64, minTime, maxTime time.Time) (page, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, since, minTime, maxTime)
	if err != nil {
		return page{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	c.metrics.SourceAPIDuration.WithLabelValues(sourceLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return page{}, fmt.Errorf("observations request: %w", err)
	}
	defer resp.Body.Close()

	if err := handleErrorResponse(resp); err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return page{}, err
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceLabel, "error").Inc()
		return page{}, fmt.Errorf("decode response: %w", err)
	}
	c.metrics.SourceRequests.WithLabelValues(sourceLabel, "success").Inc()
	return p, nil
}

func (c *Client) buildRequest(ctx context.Context, since int64, minTime, maxTime time.Time) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/observations.json")
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("since", strconv.FormatInt(since, 10))
	params.Set("min_time", strconv.FormatInt(minTime.Unix(), 10))
	params.Set("max_time", strconv.FormatInt(maxTime.Unix(), 10))
	params.Set("include_ids", "true")
	params.Set("include_mission_name", "true")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrUpstreamFailure, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("sensor-data API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, context.DeadlineExceeded)
}

// withJitter adds up to 10% random delay.
func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(float64(d)*0.1*rand.Float64())
}
