// Package httpgw implements remote.Gateway over HTTP+JSON.
package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/tasksync/internal/remote"
	"github.com/roach88/tasksync/internal/task"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is kept in the error.
const maxErrorBody = 512

// Client talks to an authority at a base URL.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

var _ remote.Gateway = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client for baseURL, e.g. "http://localhost:8080/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:    u,
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Pull fetches one page of changes.
func (c *Client) Pull(ctx context.Context, changedSince time.Time, limit int) (remote.PullPage, error) {
	u := c.base.JoinPath("tasks")
	q := url.Values{}
	q.Set("changedSince", task.FormatTime(changedSince))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var page remote.PullPage
	if err := c.do(ctx, "pull", http.MethodGet, u.String(), nil, &page); err != nil {
		return remote.PullPage{}, err
	}
	return page, nil
}

// Push sends one batch.
func (c *Client) Push(ctx context.Context, req remote.PushRequest) (remote.PushResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return remote.PushResponse{}, fmt.Errorf("encode push: %w", err)
	}

	var resp remote.PushResponse
	if err := c.do(ctx, "push", http.MethodPost, c.base.JoinPath("tasks", "batch").String(), body, &resp); err != nil {
		return remote.PushResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body []byte, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &remote.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &remote.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &remote.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &remote.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
