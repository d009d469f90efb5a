// internal/pricefeed/client.go
package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/metrics"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetries        = 3
	defaultRetryDelay     = 500 * time.Millisecond
	maxErrorBody          = 512
)

var ErrBadResponse = errors.New("pricefeed: bad response")

// Fetcher returns the current price table.
type Fetcher interface {
	Fetch(ctx context.Context) (types.PriceTable, error)
}

// Client reads the USD price table from an HTTP endpoint returning a JSON
// array of {contract, price, symbol} rows.
type Client struct {
	client     *http.Client
	url        string
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    *metrics.Collector
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.client.Timeout = d } }

// WithRetries sets how many times a failed request is repeated.
func WithRetries(n int) Option { return func(c *Client) { c.retries = n } }

func WithRetryDelay(d time.Duration) Option { return func(c *Client) { c.retryDelay = d } }

func WithMetrics(m *metrics.Collector) Option { return func(c *Client) { c.metrics = m } }

// NewClient создает клиент ценового фида
func NewClient(url string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		url:        url,
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger.Named("pricefeed"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads the table, retrying transient failures. Rows without a
// contract or with an unparsable price are dropped.
func (c *Client) Fetch(ctx context.Context) (types.PriceTable, error) {
	table, _, err := c.fetch(ctx)
	return table, err
}

func (c *Client) fetch(ctx context.Context) (types.PriceTable, int, error) {
	start := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.retryDelay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Warn("Retrying price feed request", zap.Error(err), zap.Duration("backoff", d))
	}

	raw, err := backoff.Retry(ctx, func() (types.PriceTable, error) {
		return c.fetchOnce(ctx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.retries)+1),
		backoff.WithNotify(notify))

	if err != nil {
		c.metrics.RecordPriceFetch(ctx, time.Since(start), 0, err)
		c.logger.Error("Price feed unavailable", zap.String("url", c.url), zap.Error(err))
		return nil, 0, fmt.Errorf("fetch prices: %w", err)
	}

	table, dropped := raw.Valid()
	if dropped > 0 {
		c.logger.Warn("Dropped invalid price rows", zap.Int("dropped", dropped), zap.Int("kept", len(table)))
	}
	c.metrics.RecordPriceFetch(ctx, time.Since(start), len(table), nil)
	return table, dropped, nil
}

func (c *Client) fetchOnce(ctx context.Context) (types.PriceTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, fmt.Errorf("%w: rate limited", ErrBadResponse)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, bytes.TrimSpace(body)))
	}

	var rows []feedRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: decode: %w", ErrBadResponse, err))
	}

	table := make(types.PriceTable, 0, len(rows))
	for _, r := range rows {
		table = append(table, types.TokenPrice{
			Contract: r.Contract,
			Price:    string(r.Price),
			Symbol:   r.Symbol,
		})
	}
	return table, nil
}

type feedRow struct {
	Contract string    `json:"contract"`
	Price    flexPrice `json:"price"`
	Symbol   string    `json:"symbol"`
}

// flexPrice accepts a price given either as a JSON string or a JSON number
// and keeps its literal text.
type flexPrice string

func (p *flexPrice) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = flexPrice(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = flexPrice(n.String())
	return nil
}
