// Package battlemetrics fetches authoritative server population from the
// BattleMetrics public API.
package battlemetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Config holds client settings
type Config struct {
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	RetryMax   int           `koanf:"retry_max"`
	RatePeriod time.Duration `koanf:"rate_period"` // minimum spacing between requests
	RateBurst  int           `koanf:"rate_burst"`
	MaxPages   int           `koanf:"max_pages"`
	// BreakerFailures consecutive failures open the circuit for BreakerTimeout
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// DefaultConfig returns the default client settings
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://api.battlemetrics.com",
		Timeout:         15 * time.Second,
		RetryMax:        2,
		RatePeriod:      time.Second,
		RateBurst:       5,
		MaxPages:        20,
		BreakerFailures: 5,
		BreakerTimeout:  time.Minute,
	}
}

// ServerInfo is the public summary of a game server
type ServerInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Status     string `json:"status"`
}

// Client talks to the BattleMetrics API
type Client struct {
	cfg     Config
	http    *retryablehttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// New creates a new client
func New(cfg Config, logger *slog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RatePeriod <= 0 {
		cfg.RatePeriod = defaults.RatePeriod
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaults.RateBurst
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaults.MaxPages
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaults.BreakerTimeout
	}

	logger = logger.With(slog.String("component", "battlemetrics"))

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "battlemetrics",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		cfg:     cfg,
		http:    rc,
		limiter: rate.NewLimiter(rate.Every(cfg.RatePeriod), cfg.RateBurst),
		breaker: breaker,
		logger:  logger,
	}
}

type playersPage struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type serverDocument struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Name       string `json:"name"`
			IP         string `json:"ip"`
			Port       int    `json:"port"`
			Players    int    `json:"players"`
			MaxPlayers int    `json:"maxPlayers"`
			Status     string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// FetchOnlineNames returns the raw display names currently online on the
// server, following pagination. Any failure wraps model.ErrFetchFailed and
// no partial list is returned.
func (c *Client) FetchOnlineNames(ctx context.Context, serverID string) ([]string, error) {
	if _, err := strconv.ParseUint(serverID, 10, 64); err != nil {
		return nil, fmt.Errorf("server id %q: %w", serverID, model.ErrInvalidID)
	}

	q := url.Values{}
	q.Set("filter[servers]", serverID)
	q.Set("filter[online]", "true")
	q.Set("page[size]", "100")
	next := c.cfg.BaseURL + "/players?" + q.Encode()

	names := []string{}
	for page := 0; next != ""; page++ {
		if page >= c.cfg.MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages", model.ErrFetchFailed, c.cfg.MaxPages)
		}
		body, err := c.get(ctx, "players", next)
		if err != nil {
			return nil, err
		}
		var doc playersPage
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("%w: decoding players: %v", model.ErrFetchFailed, err)
		}
		for _, p := range doc.Data {
			names = append(names, p.Attributes.Name)
		}
		next = doc.Links.Next
	}
	return names, nil
}

// ServerInfo returns the server's public summary
func (c *Client) ServerInfo(ctx context.Context, serverID string) (*ServerInfo, error) {
	if _, err := strconv.ParseUint(serverID, 10, 64); err != nil {
		return nil, fmt.Errorf("server id %q: %w", serverID, model.ErrInvalidID)
	}
	body, err := c.get(ctx, "servers", c.cfg.BaseURL+"/servers/"+serverID)
	if err != nil {
		return nil, err
	}
	var doc serverDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding server: %v", model.ErrFetchFailed, err)
	}
	a := doc.Data.Attributes
	return &ServerInfo{
		ID:         doc.Data.ID,
		Name:       a.Name,
		IP:         a.IP,
		Port:       a.Port,
		Players:    a.Players,
		MaxPlayers: a.MaxPlayers,
		Status:     a.Status,
	}, nil
}

// get performs one rate limited, retried, circuit-broken GET
func (c *Client) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrFetchFailed, err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
			return nil, err
		}
		defer resp.Body.Close()
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Debug("request rejected by circuit breaker", slog.String("endpoint", endpoint))
		}
		return nil, fmt.Errorf("%w: %s: %v", model.ErrFetchFailed, endpoint, err)
	}
	return body, nil
}
