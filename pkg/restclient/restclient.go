// Package restclient is the bounded-retry HTTP/JSON client shared by
// every collaborator wrapper (pkg/ltaclient, pkg/catalog). It wraps
// hashicorp/go-retryablehttp the way the teacher repo wraps net/http
// in pkg/health.HTTPChecker: a small Config struct for timeout and
// retry count, a context-scoped Request, and a uniform error taxonomy.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/blinkdog/lta/pkg/ltaerrors"
)

// Config controls a Client's timeout and retry behavior.
type Config struct {
	// BaseURL is the collaborator's root URL, e.g. LTA_REST_URL or
	// FILE_CATALOG_REST_URL.
	BaseURL string
	// Token is sent as a bearer token on every request. Empty means no
	// Authorization header.
	Token string
	// Timeout bounds a single request attempt (WORK_TIMEOUT_SECONDS /
	// HEARTBEAT_PATCH_TIMEOUT_SECONDS).
	Timeout time.Duration
	// Retries is the number of retry attempts after the first try
	// (WORK_RETRIES / HEARTBEAT_PATCH_RETRIES).
	Retries int
}

// Client is a bounded-retry REST client for one collaborator.
type Client struct {
	cfg Config
	hc  *retryablehttp.Client
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.Logger = nil // the worker's own structured logger covers retries; silence the library's own logging
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.CheckRetry = retryPolicy
	return &Client{cfg: cfg, hc: rc}
}

// retryPolicy retries on transport errors and 5xx responses only; 4xx
// responses are permanent and must not be retried, per spec.md section 7.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == 0 {
		return false, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// Request performs one JSON request against the collaborator and
// decodes the response body into out (which may be nil to discard the
// body). The method, path, and optional body follow the REST contract
// documented in spec.md section 6.
func (c *Client) Request(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return ltaerrors.NewDataError("encoding request body for %s %s: %v", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	url := c.cfg.BaseURL + path
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("building request %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &ltaerrors.TransientRemoteError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ltaerrors.TransientRemoteError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode >= 500 {
		return &ltaerrors.TransientRemoteError{Op: method + " " + path, Err: fmt.Errorf("http %d: %s", resp.StatusCode, trim(respBody))}
	}
	if resp.StatusCode >= 400 {
		return &ltaerrors.PermanentRemoteError{Op: method + " " + path, Err: fmt.Errorf("http %d: %s", resp.StatusCode, trim(respBody))}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return ltaerrors.NewDataError("decoding response body for %s %s: %v", method, path, err)
	}
	return nil
}

func trim(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
