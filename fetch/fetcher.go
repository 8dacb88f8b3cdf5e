// Package fetch retrieves storefront pages for discovery.
//
// Fetcher is a plain net/http client with the browser-like headers,
// timeout and redirect budget the crawler expects. Renderer drives a
// headless Chrome through rod for storefronts that build their markup in
// the browser. Both satisfy crawl.Fetcher.
package fetch

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/cdnmirror/horosafe"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Result is the outcome of one fetch.
type Result struct {
	URL         string // final URL after redirects
	Body        []byte
	StatusCode  int
	ContentType string
	Hash        string // SHA-256 of body
}

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration // Default: 30s.
	MaxBytes     int64         // Default: 10MB.
	MaxRedirects int           // Default: 5.
	UserAgent    string
	// InsecureSkipVerify disables TLS verification, for staging hosts with
	// self-signed certificates.
	InsecureSkipVerify bool
	// URLValidator runs before the request and on every redirect. Nil
	// allows every URL; horosafe.ValidateURL blocks private targets.
	URLValidator func(string) error
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Fetcher performs HTTP GETs.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	validate := cfg.URLValidator
	maxRedirects := cfg.MaxRedirects
	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: tr,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("%w (%d)", ErrTooManyRedirects, len(via))
				}
				if validate != nil {
					if err := validate(req.URL.String()); err != nil {
						return fmt.Errorf("redirect blocked: %w", err)
					}
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves url. Statuses outside 2xx return the partial Result
// together with an error wrapping ErrStatus.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if f.config.URLValidator != nil {
		if err := f.config.URLValidator(url); err != nil {
			return nil, fmt.Errorf("fetch: url blocked: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: get: %w", err)
	}
	defer resp.Body.Close()

	res := &Result{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}

	body, err := horosafe.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return res, fmt.Errorf("fetch: read body: %w", err)
	}
	res.Body = body
	res.Hash = fmt.Sprintf("%x", sha256.Sum256(body))
	return res, nil
}

// Get returns the body and status of url. Failures yield an empty body
// and are logged; the status is 0 when no response arrived.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, int) {
	res, err := f.Fetch(ctx, url)
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		f.config.Logger.Warn("fetch: failed", "url", url, "status", status, "error", err)
		return nil, status
	}
	f.config.Logger.Debug("fetch: fetched", "url", url, "status", res.StatusCode, "size", len(res.Body))
	return res.Body, res.StatusCode
}
