// internal/near/client.go
package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/metrics"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetries        = 3
	defaultRetryDelay     = 300 * time.Millisecond
)

var (
	ErrEmptyResult = errors.New("near: empty view result")
	ErrHTTPStatus  = errors.New("near: unexpected http status")
)

// RPCError is a JSON-RPC error returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Name    string          `json:"name"`
	Cause   *rpcErrorCause  `json:"cause,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcErrorCause struct {
	Name string          `json:"name"`
	Info json.RawMessage `json:"info,omitempty"`
}

func (e *RPCError) Error() string {
	cause := ""
	if e.Cause != nil {
		cause = e.Cause.Name
	}
	return fmt.Sprintf("near rpc error %d %s/%s: %s", e.Code, e.Name, cause, e.Message)
}

// transient causes are worth another attempt
func (e *RPCError) transient() bool {
	if e.Cause == nil {
		return false
	}
	switch e.Cause.Name {
	case "TIMEOUT_ERROR", "UNAVAILABLE_SHARD", "NO_SYNCED_BLOCKS", "NOT_SYNCED_YET":
		return true
	}
	return false
}

// ContractError is returned when the view call itself panicked or the
// method does not exist.
type ContractError struct {
	Contract string
	Method   string
	Message  string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Contract, e.Method, e.Message)
}

// Client performs read-only contract calls through a NEAR JSON-RPC node.
type Client struct {
	client     *http.Client
	url        string
	finality   string
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    *metrics.Collector
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.client.Timeout = d } }

func WithRetries(n int) Option { return func(c *Client) { c.retries = n } }

func WithRetryDelay(d time.Duration) Option { return func(c *Client) { c.retryDelay = d } }

func WithMetrics(m *metrics.Collector) Option { return func(c *Client) { c.metrics = m } }

// WithFinality switches between "final" (default) and "optimistic" reads.
func WithFinality(f string) Option { return func(c *Client) { c.finality = f } }

func NewClient(url string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: defaultRequestTimeout},
		url:        url,
		finality:   "final",
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger.Named("near_rpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  queryParams `json:"params"`
}

type queryParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

type rpcResponse struct {
	Result *callResult `json:"result"`
	Error  *RPCError   `json:"error"`
}

type callResult struct {
	Result      []byte   `json:"-"`
	RawResult   []int    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHeight uint64   `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
	Error       string   `json:"error,omitempty"`
}

// ViewMethod calls a view method of contract with JSON args and decodes the
// JSON return value into out. args may be nil.
func (c *Client) ViewMethod(ctx context.Context, contract, method string, args, out any) error {
	start := time.Now()
	raw, err := c.call(ctx, contract, method, args)
	c.metrics.RecordRPC(method, contract, time.Since(start), err)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: %s.%s", ErrEmptyResult, contract, method)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s.%s result: %w", contract, method, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, contract, method string, args any) ([]byte, error) {
	if args == nil {
		args = struct{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", method, err)
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "jumpdefi",
		Method:  "query",
		Params: queryParams{
			RequestType: "call_function",
			Finality:    c.finality,
			AccountID:   contract,
			MethodName:  method,
			ArgsBase64:  base64.StdEncoding.EncodeToString(argsJSON),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.retryDelay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Warn("Retrying view call",
			zap.String("contract", contract),
			zap.String("method", method),
			zap.Error(err),
			zap.Duration("backoff", d))
	}

	res, err := backoff.Retry(ctx, func() (*callResult, error) {
		return c.post(ctx, body)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.retries)+1),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("view %s.%s: %w", contract, method, err)
	}
	if res.Error != "" {
		return nil, &ContractError{Contract: contract, Method: method, Message: res.Error}
	}

	c.logger.Debug("View call completed",
		zap.String("contract", contract),
		zap.String("method", method),
		zap.Uint64("block_height", res.BlockHeight))
	return res.Result, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*callResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	// nodes answer JSON-RPC errors with 200 and sometimes 400
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}
	if out.Error != nil {
		if out.Error.transient() {
			return nil, out.Error
		}
		return nil, backoff.Permanent(out.Error)
	}
	if out.Result == nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrEmptyResult, resp.StatusCode))
	}

	// result is a JSON array of byte values
	res := out.Result
	res.Result = make([]byte, len(res.RawResult))
	for i, b := range res.RawResult {
		if b < 0 || b > 255 {
			return nil, backoff.Permanent(fmt.Errorf("result byte %d out of range: %d", i, b))
		}
		res.Result[i] = byte(b)
	}
	return res, nil
}
