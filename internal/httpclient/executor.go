package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Response carries the raw outcome of an HTTP exchange. Callers inspect the
// status and body themselves; SureDone signals domain errors (including token
// expiry) inside otherwise-decodable JSON bodies, so a non-2xx status is not
// collapsed into an error here.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the response carried a non-error HTTP status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Executor handles rate-limited HTTP execution with bounded retries on
// transport failures and 5xx responses.
type Executor struct {
	logger   *zap.Logger
	rateMgr  *rate.Manager
	http     *http.Client
	retryMax int
	tag      string
}

// New creates an Executor. tag is used as the log-event prefix.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, retryMax int, tag string) *Executor {
	return &Executor{
		logger:   logger,
		rateMgr:  rateMgr,
		http:     httpClient,
		retryMax: retryMax,
		tag:      tag,
	}
}

// Do executes req with rate limiting and retries, returning the raw status and
// body. rateLimitKey scopes the rate limiter per tenant. The request body (if
// any) must be supplied via bodyBytes so retries can replay it.
func (e *Executor) Do(ctx context.Context, req *http.Request, rateLimitKey string, bodyBytes []byte) (*Response, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.tag+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			e.sleepBeforeRetry(attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)

		if readErr != nil {
			lastErr = readErr
			e.logger.Warn(e.tag+".read_failed",
				zap.String("url", req.URL.String()),
				zap.Error(readErr),
				zap.Int("attempt", attempt))
			e.sleepBeforeRetry(attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			e.logger.Warn(e.tag+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL.String()),
				zap.Duration("latency", elapsed))
			lastErr = fmt.Errorf("%s server error: %d", e.tag, resp.StatusCode)
			e.sleepBeforeRetry(attempt)
			continue
		}

		e.logger.Debug(e.tag+".http_done",
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))

		return &Response{Status: resp.StatusCode, Body: body}, nil
	}

	return nil, fmt.Errorf("%s request failed after %d attempts: %w", e.tag, e.retryMax+1, lastErr)
}

// sleepBeforeRetry backs off between attempts. The final failed attempt
// returns immediately.
func (e *Executor) sleepBeforeRetry(attempt int) {
	if attempt < e.retryMax {
		time.Sleep(Backoff(attempt))
	}
}
