// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rest implements the rest connector kind contract (spec §4.5):
// a thin, retrying wrapper around net/http respecting per-resource
// timeout and retry options.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"
)

// Request carries the optional pieces of one HTTP call (spec §4.5
// "request(method, url, *, params, headers, json, data, files,
// content, timeout)"). Files upload is intentionally omitted — no
// SPEC_FULL.md step needs multipart REST uploads; file_transfer steps
// use the sftp/smb kinds for binary transfer instead.
type Request struct {
	Params  map[string]string
	Headers map[string]string
	JSON    any
	Data    url.Values
	Content []byte
	Timeout time.Duration
}

// Response is the normalized REST result.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// DecodeJSON decodes the response body as JSON into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// REST is the kind contract every rest driver must satisfy (spec §4.5
// "rest" row).
type REST interface {
	Request(ctx context.Context, method, rawURL string, req Request) (*Response, error)
	Get(ctx context.Context, rawURL string, req Request) (*Response, error)
	Post(ctx context.Context, rawURL string, req Request) (*Response, error)
	Put(ctx context.Context, rawURL string, req Request) (*Response, error)
	Delete(ctx context.Context, rawURL string, req Request) (*Response, error)
	Close() error
}

// RetryPolicy configures request retries (spec §4.5 "respects timeout
// and retry.max_attempts from options").
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type httpREST struct {
	client      *http.Client
	baseURL     string
	retry       RetryPolicy
	baseHeaders map[string]string
}

// Config configures one http driver instance, sourced from the
// resource's config/options by the registry wiring in builtins.go.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Retry       RetryPolicy
	BaseHeaders map[string]string
}

// New builds a REST connector backed by net/http.
func New(cfg Config) REST {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 200 * time.Millisecond
	}
	return &httpREST{
		client:      &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		retry:       retry,
		baseHeaders: cfg.BaseHeaders,
	}
}

func (c *httpREST) resolve(rawURL string, params map[string]string) (string, error) {
	full := rawURL
	if c.baseURL != "" {
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return "", fmt.Errorf("rest: invalid base_url: %w", err)
		}
		ref, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("rest: invalid url: %w", err)
		}
		full = u.ResolveReference(ref).String()
	}
	if len(params) == 0 {
		return full, nil
	}
	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("rest: invalid url: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *httpREST) Request(ctx context.Context, method, rawURL string, req Request) (*Response, error) {
	target, err := c.resolve(rawURL, req.Params)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("rest: encode json body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case req.Data != nil:
		body = bytes.NewReader([]byte(req.Data.Encode()))
		contentType = "application/x-www-form-urlencoded"
	case req.Content != nil:
		body = bytes.NewReader(req.Content)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var lastErr error
	delay := c.retry.BaseDelay
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			if seeker, ok := body.(io.Seeker); ok {
				_, _ = seeker.Seek(0, io.SeekStart)
			}
			bodyReader = body
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("rest: build request: %w", err)
		}
		for k, v := range c.baseHeaders {
			httpReq.Header.Set(k, v)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}
		if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
			httpReq.Header.Set("Content-Type", contentType)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = err
		} else {
			defer resp.Body.Close()
			data, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode >= 500 && attempt < c.retry.MaxAttempts {
				lastErr = fmt.Errorf("rest: server error %d", resp.StatusCode)
			} else {
				return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
			}
		}

		if attempt < c.retry.MaxAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay = time.Duration(math.Min(float64(delay)*2, float64(30*time.Second)))
		}
	}
	return nil, fmt.Errorf("rest: request failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *httpREST) Get(ctx context.Context, rawURL string, req Request) (*Response, error) {
	return c.Request(ctx, http.MethodGet, rawURL, req)
}

func (c *httpREST) Post(ctx context.Context, rawURL string, req Request) (*Response, error) {
	return c.Request(ctx, http.MethodPost, rawURL, req)
}

func (c *httpREST) Put(ctx context.Context, rawURL string, req Request) (*Response, error) {
	return c.Request(ctx, http.MethodPut, rawURL, req)
}

func (c *httpREST) Delete(ctx context.Context, rawURL string, req Request) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, rawURL, req)
}

func (c *httpREST) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
