// Package bridge talks to the browser-automation sidecar that drives one
// bookmaker account. Each account session gets its own Client pointed at
// the sidecar endpoint and profile named by its connection descriptor.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// Client is the signed REST client for one sidecar endpoint.
type Client struct {
	baseURL    string
	signer     *crypto.RequestSigner
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client. ratePerSecond <= 0 disables pacing.
func NewClient(baseURL string, signer *crypto.RequestSigner, timeout time.Duration, ratePerSecond float64, burst int) *Client {
	lim := rate.NewLimiter(rate.Inf, 0)
	if ratePerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSecond), max(burst, 1))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    lim,
	}
}

// do builds, signs, sends and decodes one request. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace: %w", err)
	}

	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.signer != nil {
		c.signer.Sign(req, body)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", venue.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", venue.ErrUnavailable, err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// codeErrors maps sidecar error codes to venue sentinels.
var codeErrors = map[string]error{
	"event_not_found":    venue.ErrEventNotFound,
	"market_not_found":   venue.ErrMarketNotFound,
	"market_suspended":   venue.ErrMarketSuspended,
	"need_refresh":       venue.ErrNeedRefresh,
	"translation_failed": venue.ErrTranslation,
	"rejected":           venue.ErrRejected,
}

// StatusError is a non-2xx answer that maps to no venue sentinel.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge: HTTP %d: %s (%s)", e.Status, e.Message, e.Code)
}

// checkStatus maps non-2xx answers to venue sentinels. The error code in
// the body wins; the status code decides otherwise.
func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	detail := &StatusError{Status: status, Code: apiErr.Code, Message: apiErr.Message}

	if sentinel, ok := codeErrors[apiErr.Code]; ok {
		return fmt.Errorf("%w: %w", sentinel, detail)
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", venue.ErrEventNotFound, detail)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %w", venue.ErrNeedRefresh, detail)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", venue.ErrRejected, detail)
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status >= 500:
		return fmt.Errorf("%w: %w", venue.ErrUnavailable, detail)
	default:
		return detail
	}
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
