// CLAUDE:SUMMARY Bounded HTTP client with URL validation, redirect guard, and gzip/zstd content decoding.
// Package fetch performs the HTTP requests behind every remote collaborator.
//
// Responses may be gzip or zstd encoded; bodies are decoded and capped at
// Config.MaxBytes after decoding.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/hazyhaar/placebot/horosafe"
)

// Result contains the outcome of a request.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string
	Header      http.Header
}

// StatusError is returned by Get for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: http %d", e.URL, e.Code)
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // HTTP timeout. Default: 30s.
	MaxBytes int64         // Max decoded body size. Default: 16MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch and on redirects.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
	// Jar is the cookie jar of the underlying client. Optional.
	Jar http.CookieJar
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 16 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "placebot/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// Fetcher performs bounded HTTP requests.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher with URL validation on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     cfg.Jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// WithJar returns a copy of f whose requests use jar for cookies.
func (f *Fetcher) WithJar(jar http.CookieJar) *Fetcher {
	cfg := f.config
	cfg.Jar = jar
	return New(cfg)
}

// Get retrieves url. Non-2xx responses return a *StatusError.
func (f *Fetcher) Get(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	res, err := f.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res, &StatusError{URL: url, Code: res.StatusCode}
	}
	return res, nil
}

// Do validates the request URL, sends it and reads the decoded body.
// Any HTTP status is returned without error; callers inspect StatusCode.
func (f *Fetcher) Do(req *http.Request) (*Result, error) {
	if err := f.config.URLValidator(req.URL.String()); err != nil {
		return nil, fmt.Errorf("URL blocked: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, zstd")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s: %w", strings.ToLower(req.Method), err)
	}
	defer resp.Body.Close()

	body, err := decode(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := horosafe.LimitedReadAll(body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Result{
		Body:        data,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
	}, nil
}

func decode(resp *http.Response) (io.ReadCloser, error) {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}
