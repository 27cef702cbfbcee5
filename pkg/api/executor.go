package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/retry"
)

// MaxAttempts bounds the HTTP calls made for one page.
const MaxAttempts = 10

// Doer sends a prepared request. *session.Session satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is the successful result of Execute.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Executor issues one page request and applies the retry policy.
type Executor struct {
	logger      logger.Logger
	sleep       retry.SleepFunc
	maxAttempts int
	tracer      trace.Tracer
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger
func WithExecutorLogger(l logger.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(s retry.SleepFunc) ExecutorOption {
	return func(e *Executor) { e.sleep = s }
}

// WithMaxAttempts overrides MaxAttempts.
func WithMaxAttempts(n int) ExecutorOption {
	return func(e *Executor) { e.maxAttempts = n }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an Executor
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		sleep:       retry.Wait,
		maxAttempts: MaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.OrGlobal(e.logger).WithField("component", "executor")
	if e.tracer == nil {
		e.tracer = otel.Tracer("searchtweets/api")
	}
	return e
}

// Execute sends payload to endpoint, retrying 429 and 5xx responses.
// Connection failures and other statuses are returned at once.
func (e *Executor) Execute(ctx context.Context, sess Doer, method, endpoint string, payload Params) (*Response, error) {
	ctx, span := e.tracer.Start(ctx, "searchtweets.execute", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("url.full", endpoint),
	))
	defer span.End()

	var last struct {
		code int
		body string
	}
	attempts := 0

	etb := retry.NewErrorTypeBackoff()
	cfg := &retry.Config{
		MaxAttempts: e.maxAttempts,
		BackoffFor:  etb.ForError,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      e.logger,
		Sleep:       e.sleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if errs.TypeOf(err) == errs.ErrorTypeRateLimit {
				logger.LogRateLimit(e.logger, endpoint, delay)
			} else {
				e.logger.WarnWithFields("server-side error, will retry", map[string]interface{}{
					"status_code":   errs.StatusCode(err),
					"sleep_seconds": int(delay.Seconds()),
				})
			}
		},
	}

	resp, err := retry.DoWithResult(func() (*Response, error) {
		attempts++
		r, err := e.attempt(ctx, sess, method, endpoint, payload)
		var apiErr *errs.Error
		if errors.As(err, &apiErr) && apiErr.Code != 0 {
			last.code, last.body = apiErr.Code, apiErr.Body
		}
		return r, err
	}, cfg)

	span.SetAttributes(attribute.Int("searchtweets.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, retry.ErrMaxAttempts) {
			return nil, &errs.Error{
				Type:    errs.ErrorTypeHTTP,
				Code:    last.code,
				Body:    last.body,
				Message: fmt.Sprintf("retry budget of %d attempts exhausted", e.maxAttempts),
				Err:     err,
			}
		}
		return nil, err
	}

	resp.Attempts = attempts
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (e *Executor) attempt(ctx context.Context, sess Doer, method, endpoint string, payload Params) (*Response, error) {
	req, err := newRequest(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := sess.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.ErrorWithFields("connection error for session", map[string]interface{}{
			"method": method,
			"url":    endpoint,
			"error":  err.Error(),
		})
		return nil, errs.NewTransportError("connection error for session", err)
	}
	defer httpResp.Body.Close()

	body, err := readBody(httpResp)
	if err != nil {
		return nil, errs.NewTransportError("failed to read response body", err)
	}
	logger.LogRequest(e.logger, method, endpoint, httpResp.StatusCode, time.Since(start))

	if httpResp.StatusCode == http.StatusOK {
		e.logger.DebugWithFields("request succeeded", map[string]interface{}{
			"status_code":  httpResp.StatusCode,
			"body_preview": preview(body, 200),
			"payload":      payload.String(),
		})
		return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
	}

	desc := DescribeStatus(httpResp.StatusCode)
	e.logger.ErrorWithFields("HTTP error", map[string]interface{}{
		"status_code": httpResp.StatusCode,
		"description": desc,
		"body":        string(body),
		"payload":     payload.String(),
	})
	return nil, &errs.Error{
		Type:    errs.ClassifyStatus(httpResp.StatusCode),
		Code:    httpResp.StatusCode,
		Body:    string(body),
		Message: desc,
	}
}

func newRequest(ctx context.Context, method, endpoint string, payload Params) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	switch strings.ToUpper(method) {
	case http.MethodGet:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err == nil && len(payload) > 0 {
			req.URL.RawQuery = payload.Values().Encode()
		}
	case http.MethodPost, "":
		var body []byte
		body, err = payload.JSON()
		if err != nil {
			return nil, errs.NewConfigurationError(fmt.Sprintf("cannot encode payload: %v", err))
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		return nil, errs.NewConfigurationError(fmt.Sprintf("unsupported request method %q", method))
	}
	if err != nil {
		return nil, errs.NewConfigurationError(fmt.Sprintf("cannot build request: %v", err))
	}
	return req, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

func preview(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n])
}
