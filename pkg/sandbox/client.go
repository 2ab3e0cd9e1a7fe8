package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qfeed",
		Subsystem: "sandbox",
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of sandbox pipeline dispatches",
	})

	dispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qfeed",
		Subsystem: "sandbox",
		Name:      "dispatch_failures_total",
		Help:      "Number of failed sandbox dispatches",
	}, []string{"reason"})
)

// Result is the sandbox's answer to a dispatched pipeline. Code 0 denotes a
// clean run; any other exit code is a valid result, not a transport failure.
type Result struct {
	Data map[string]any `json:"data"`
	Log  []string       `json:"log"`
	Code int            `json:"code"`
}

// Client dispatches a context and pipeline to the execution sandbox.
type Client interface {
	Dispatch(ctx context.Context, data any, pipeline any) (Result, error)
}

// Config defines construction options for the HTTP sandbox client.
type Config struct {
	Endpoint   string
	TokenURL   string
	SkipAuth   bool
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

// HTTPClient implements Client against the remote execution service.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
	logger     zerolog.Logger
}

type dispatchRequest struct {
	Data     any `json:"data"`
	Pipeline any `json:"pipeline"`
}

// New builds a sandbox client using the provided configuration.
func New(cfg Config) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("sandbox endpoint is required")
	}
	if !cfg.SkipAuth && cfg.TokenURL == "" {
		return nil, fmt.Errorf("metadata token url is required when auth is enabled")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer("github.com/openedu-labs/qfeed-api/pkg/sandbox"),
		logger:     cfg.Logger.With().Str("component", "sandbox_client").Logger(),
	}, nil
}

// Dispatch posts {data, pipeline} to the sandbox and decodes the updated
// context, log and exit code. Transport failures and 5xx responses are
// retried with linear backoff; a decoded response is never retried.
func (c *HTTPClient) Dispatch(parent context.Context, data any, pipeline any) (Result, error) {
	ctx, span := c.tracer.Start(parent, "sandbox.dispatch")
	defer span.End()

	body, err := json.Marshal(dispatchRequest{Data: data, Pipeline: pipeline})
	if err != nil {
		return Result{}, fmt.Errorf("encode sandbox request: %w", err)
	}

	token := ""
	if !c.cfg.SkipAuth {
		token, err = c.fetchToken(ctx)
		if err != nil {
			dispatchFailures.WithLabelValues("token").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "token_fetch_failed")
			return Result{}, err
		}
	}

	start := time.Now()
	resp, err := c.post(ctx, body, token)
	dispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		dispatchFailures.WithLabelValues("transport").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch_failed")
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("sandbox returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		dispatchFailures.WithLabelValues("status").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch_rejected")
		return Result{}, err
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		dispatchFailures.WithLabelValues("decode").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode_failed")
		return Result{}, fmt.Errorf("decode sandbox response: %w", err)
	}

	span.SetAttributes(attribute.Int("sandbox.exit_code", result.Code))

	return result, nil
}

// post performs the dispatch POST, retrying transport errors and 5xx
// responses up to the configured count.
func (c *HTTPClient) post(ctx context.Context, body []byte, token string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			c.logger.Warn().Int("attempt", attempt).Msg("retrying sandbox dispatch")
			select {
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build sandbox request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			payload, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("sandbox returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("sandbox dispatch failed after %d attempts: %w", c.cfg.RetryCount+1, lastErr)
}

// fetchToken asks the local metadata endpoint for a bearer token scoped to
// the sandbox audience.
func (c *HTTPClient) fetchToken(ctx context.Context) (string, error) {
	tokenURL := fmt.Sprintf("%s?audience=%s", c.cfg.TokenURL, url.QueryEscape(c.cfg.Endpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch sandbox token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata endpoint returned status %d", resp.StatusCode)
	}

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sandbox token: %w", err)
	}

	return strings.TrimSpace(string(token)), nil
}
