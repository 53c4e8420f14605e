package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Client talks to the chartpay backend over HTTP/JSON.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics

	mu    sync.RWMutex
	token string
}

// New creates a Client. Outbound requests are traced with otelhttp.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		token:      cfg.Token,
	}, nil
}

// SetToken replaces the bearer token used for subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do performs one call. out is left untouched on 204 and found reports
// whether a body was decoded.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (found bool, err error) {
	start := time.Now()
	defer func() {
		code := "OK"
		if err != nil {
			code = string(apperrors.CodeOf(err))
		}
		c.metrics.BackendCall(op, code, time.Since(start))
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return false, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := observability.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, apperrors.Network(ctxErr)
		}
		return false, apperrors.Network(err)
	}
	defer resp.Body.Close()

	log := c.logger.WithFields(map[string]interface{}{
		"operation":  op,
		"status":     resp.StatusCode,
		"request_id": requestID,
	})

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeError(resp)
		log.WithError(apiErr).Debug("backend call failed")
		return false, apiErr
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		log.Debug("backend call succeeded")
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeInternal, "failed to decode "+op+" response")
	}
	log.Debug("backend call succeeded")
	return true, nil
}

func decodeError(resp *http.Response) *apperrors.Error {
	var env apperrors.Envelope
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &env); err != nil || (env.Error.Code == "" && env.Error.Message == "") {
		return apperrors.FromBody(resp.StatusCode, apperrors.Body{Message: http.StatusText(resp.StatusCode)})
	}
	return apperrors.FromBody(resp.StatusCode, env.Error)
}

// IsAuthError reports whether err requires the session to be torn down.
func IsAuthError(err error) bool {
	return errors.Is(err, apperrors.ErrAuth)
}
