// Package gateway connects the service to the terminal fleet: it accepts
// button presses over HTTP and pushes rendered frames to the display relay.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/eink-labs/chess-hlss/internal/frame"
)

// Display delivers a composed frame to a terminal's e-Ink panel.
type Display interface {
	PushFrame(ctx context.Context, deviceID string, f frame.Frame) error
}

// HTTPDisplay pushes frames to the display relay's REST API.
type HTTPDisplay struct {
	baseURL  string
	apiToken string
	http     *fasthttp.Client

	timeout  time.Duration
	retryMax int
}

type DisplayOption func(*HTTPDisplay)

func WithDisplayTimeout(d time.Duration) DisplayOption {
	return func(c *HTTPDisplay) { c.timeout = d }
}

func WithDisplayRetry(max int) DisplayOption {
	return func(c *HTTPDisplay) { c.retryMax = max }
}

func NewHTTPDisplay(baseURL, apiToken string, opts ...DisplayOption) *HTTPDisplay {
	c := &HTTPDisplay{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout:  10 * time.Second,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PushFrame uploads the PNG. The frame hash travels in a header so the relay
// can skip refreshing a panel that already shows this image.
func (c *HTTPDisplay) PushFrame(ctx context.Context, deviceID string, f frame.Frame) error {
	url := fmt.Sprintf("%s/api/devices/%s/frame", c.baseURL, deviceID)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentType("image/png")
	req.Header.Set("X-Frame-Hash", f.Hash)
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	req.SetBody(f.PNG)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.deadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return nil
			}
			lastErr = fmt.Errorf("display relay error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if !retryableStatus(status) {
				return lastErr
			}
		} else {
			lastErr = fmt.Errorf("push frame to %s: %w", deviceID, err)
		}
		if attempt < attempts {
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

func (c *HTTPDisplay) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(c.timeout)
	if ctxDL, ok := ctx.Deadline(); ok && ctxDL.Before(dl) {
		return ctxDL
	}
	return dl
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func retryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NopDisplay discards frames, for running without a display relay.
type NopDisplay struct{}

func (NopDisplay) PushFrame(context.Context, string, frame.Frame) error { return nil }

var _ Display = (*HTTPDisplay)(nil)
var _ Display = NopDisplay{}
