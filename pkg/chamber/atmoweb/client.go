// Package atmoweb talks to chambers exposing the AtmoWEB REST interface.
// All commands are GET requests with query parameters against a single base
// URL; the device answers with JSON, or with loose key=value text on older
// firmware.
package atmoweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"thermoctl/pkg/chamber"
)

// fallbackRange is assumed when the device does not report its setpoint range.
var fallbackRange = chamber.Range{Min: 0.0, Max: 70.0}

// temp1ReadPattern matches both `"Temp1Read": 19.531` and `Temp1Read=19.531`.
var temp1ReadPattern = regexp.MustCompile(`Temp1Read[":=\s]*([0-9.]+)`)

// Client is an AtmoWEB HTTP client with retry and exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
}

// Options tunes retry behavior. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// New creates a client for the given AtmoWEB base URL,
// e.g. "http://192.168.96.21/atmoweb".
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
	}
}

// stateResponse mirrors the JSON shape of a Temp1Read/TempSet_Range query.
type stateResponse struct {
	Temp1Read    *float64       `json:"Temp1Read"`
	TempSetRange *chamber.Range `json:"TempSet_Range"`
	CurOp        string         `json:"CurOp"`
}

// ReadState returns the current temperature and setpoint range.
func (c *Client) ReadState(ctx context.Context) (float64, chamber.Range, error) {
	body, err := c.get(ctx, "?Temp1Read=&TempSet_Range=")
	if err != nil {
		return 0, chamber.Range{}, err
	}

	var resp stateResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Temp1Read != nil {
		rng := fallbackRange
		if resp.TempSetRange != nil {
			rng = *resp.TempSetRange
		}
		return *resp.Temp1Read, rng, nil
	}

	// Older firmware answers with loose text instead of JSON.
	temp, ok := parseTemp(string(body))
	if !ok {
		return 0, chamber.Range{}, fmt.Errorf("%w: no Temp1Read in %q", chamber.ErrBadResponse, truncate(string(body), 120))
	}
	return temp, fallbackRange, nil
}

// SetTarget commands a new setpoint.
func (c *Client) SetTarget(ctx context.Context, temp float64) error {
	_, err := c.get(ctx, fmt.Sprintf("?TempSet=%s", strconv.FormatFloat(temp, 'f', -1, 64)))
	if err != nil {
		return fmt.Errorf("failed to set target: %w", err)
	}
	return nil
}

// CurrentOp returns the device operating mode string.
func (c *Client) CurrentOp(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "?CurOp=")
	if err != nil {
		return "", err
	}

	var resp stateResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.CurOp != "" {
		return resp.CurOp, nil
	}
	return strings.TrimSpace(string(body)), nil
}

// ExitProgram aborts a running program on the device.
func (c *Client) ExitProgram(ctx context.Context) error {
	if _, err := c.get(ctx, "?ProgExit="); err != nil {
		return fmt.Errorf("failed to abort program: %w", err)
	}
	return nil
}

// Close implements chamber.Client. The HTTP client has no resources to free.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// get performs a GET against baseURL+query with exponential backoff on
// network errors and retryable status codes.
func (c *Client) get(ctx context.Context, query string) ([]byte, error) {
	u := c.baseURL + query

	for attempt := 0; attempt < c.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		slog.Debug("device request", "url", u, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("device request failed, retrying", "url", u, "attempt", attempt+1, "error", err)
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			slog.Warn("device backoff", "status", resp.StatusCode, "url", u, "attempt", attempt+1)
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("device error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("%w after %d retries", chamber.ErrUnreachable, c.retries)
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	d := time.Duration(math.Pow(2, float64(attempt))) * c.retryDelay
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseTemp(text string) (float64, bool) {
	m := temp1ReadPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
