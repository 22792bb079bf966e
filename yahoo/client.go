// Package yahoo implements market.PriceSource against the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rustyeddy/livermore/market"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com"

var errMalformed = errors.New("malformed chart response")

// Config tunes the client. Zero values are replaced by DefaultConfig's.
type Config struct {
	BaseURL   string
	UserAgent string

	MaxAttempts int
	// Timeout bounds the first attempt; it doubles after every 429 up to MaxTimeout.
	Timeout        time.Duration
	MaxTimeout     time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64
	Burst             int

	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		UserAgent:         "livermore/dev",
		MaxAttempts:       3,
		Timeout:           10 * time.Second,
		MaxTimeout:        60 * time.Second,
		InitialBackoff:    time.Second,
		MaxBackoff:        8 * time.Second,
		RequestsPerSecond: 2,
		Burst:             1,
		BreakerFailures:   5,
		BreakerCooldown:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxTimeout < c.Timeout {
		c.MaxTimeout = c.Timeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	return c
}

// Client fetches the latest regular-market price for a ticker.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
	now        func() time.Time
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("yahoo")

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "yahoo-chart",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// Only an unhealthy endpoint trips the breaker, not a bad symbol.
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		breaker:    breaker,
		log:        log,
		now:        time.Now,
	}
}

// statusError is a non-200 answer from the chart endpoint.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API error (status %d)", e.Code)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Code, e.Body)
}

// retryable reports whether another attempt could succeed: throttling,
// server errors and transport failures.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, errMalformed)
}

// GetPrice implements market.PriceSource with bounded retries.
func (c *Client) GetPrice(ctx context.Context, symbol string) (market.Quote, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return market.Quote{}, &market.PriceFetchError{Reason: "symbol is required"}
	}
	if err := ctx.Err(); err != nil {
		return market.Quote{}, &market.PriceFetchError{Symbol: symbol, Reason: "canceled", Err: err}
	}

	timeout := c.cfg.Timeout
	attempts := 0

	op := func() (market.Quote, error) {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return market.Quote{}, backoff.Permanent(err)
		}

		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, symbol, timeout)
		})
		if err == nil {
			return res.(market.Quote), nil
		}

		var se *statusError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return market.Quote{}, backoff.Permanent(err)
		case ctx.Err() != nil:
			return market.Quote{}, backoff.Permanent(err)
		case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
			timeout = min(timeout*2, c.cfg.MaxTimeout)
			return market.Quote{}, err
		case !retryable(err):
			return market.Quote{}, backoff.Permanent(err)
		}
		return market.Quote{}, err
	}

	q, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warn("quote fetch failed, retrying",
				zap.String("symbol", symbol),
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Duration("timeout", timeout),
				zap.Error(err))
		}),
	)
	if err != nil {
		reason := failureReason(ctx, err, attempts)
		c.log.Error("quote fetch failed",
			zap.String("symbol", symbol),
			zap.String("reason", reason),
			zap.Error(err))
		return market.Quote{}, &market.PriceFetchError{Symbol: symbol, Reason: reason, Err: err}
	}

	if err := market.CheckPrice(q.Price); err != nil {
		return market.Quote{}, &market.PriceFetchError{Symbol: symbol, Reason: "invalid quote", Err: err}
	}

	c.log.Debug("quote fetched",
		zap.String("symbol", symbol),
		zap.String("price", q.Price.String()),
		zap.Int("attempts", attempts))
	return q, nil
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	return b
}

func failureReason(ctx context.Context, err error, attempts int) string {
	var se *statusError
	switch {
	case ctx.Err() != nil:
		return "canceled"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit open"
	case errors.Is(err, errMalformed):
		return "malformed response"
	case errors.As(err, &se) && !retryable(err):
		return "rejected by quote service"
	}
	return fmt.Sprintf("gave up after %d attempts", attempts)
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta chartMeta `json:"meta"`
		} `json:"result"`
		Error *chartError `json:"error"`
	} `json:"chart"`
}

type chartMeta struct {
	Symbol             string              `json:"symbol"`
	Currency           string              `json:"currency"`
	RegularMarketPrice decimal.NullDecimal `json:"regularMarketPrice"`
	RegularMarketTime  int64               `json:"regularMarketTime"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (c *Client) fetch(ctx context.Context, symbol string, timeout time.Duration) (market.Quote, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "1d")
	apiURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, apiURL, nil)
	if err != nil {
		return market.Quote{}, fmt.Errorf("%w: create request: %v", errMalformed, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return market.Quote{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return market.Quote{}, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return market.Quote{}, fmt.Errorf("%w: decode: %v", errMalformed, err)
	}
	if e := payload.Chart.Error; e != nil {
		return market.Quote{}, fmt.Errorf("%w: %s: %s", errMalformed, e.Code, e.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return market.Quote{}, fmt.Errorf("%w: empty result", errMalformed)
	}

	meta := payload.Chart.Result[0].Meta
	if !meta.RegularMarketPrice.Valid {
		return market.Quote{}, fmt.Errorf("%w: regularMarketPrice missing", errMalformed)
	}

	at := c.now()
	if meta.RegularMarketTime > 0 {
		at = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return market.Quote{Symbol: symbol, Price: meta.RegularMarketPrice.Decimal, Time: at}, nil
}
