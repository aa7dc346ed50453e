// Package httpfetch is an HTTP-backed remote.Fetcher for content servers
// exposing resources at {base}/{ownerID}/{resourcePath}.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bookvault/rescache/remote"
)

const defaultTimeout = 30 * time.Second

var ErrEmptyBaseURL = errors.New("httpfetch: empty base URL")

type Config struct {
	// BaseURL is the content server root, without a trailing slash.
	BaseURL string

	// HTTPClient overrides the default client. Timeout is ignored when
	// this is set; the supplied client keeps its own.
	HTTPClient *http.Client

	// Timeout for the default client. 0 means 30s.
	Timeout time.Duration
}

type Client struct {
	base string
	hc   *http.Client
}

var _ remote.Fetcher = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		t := cfg.Timeout
		if t <= 0 {
			t = defaultTimeout
		}
		hc = &http.Client{Timeout: t}
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), hc: hc}, nil
}

// Fetch GETs the resource. Any transport error or non-2xx status is returned
// as a failure; the caller decides whether to retry.
func (c *Client) Fetch(ctx context.Context, ownerID, resourcePath string) (*remote.Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resourceURL(ownerID, resourcePath), nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("httpfetch: %s %s: unexpected status %s", ownerID, resourcePath, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: read body: %w", err)
	}

	return &remote.Resource{
		Data:     data,
		MimeType: resp.Header.Get("Content-Type"),
	}, nil
}

// resourceURL escapes each path segment individually so resource paths that
// contain slashes keep their structure.
func (c *Client) resourceURL(ownerID, resourcePath string) string {
	segs := strings.Split(resourcePath, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return c.base + "/" + url.PathEscape(ownerID) + "/" + strings.Join(segs, "/")
}
