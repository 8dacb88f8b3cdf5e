package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RenderConfig configures a Renderer.
type RenderConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// Timeout bounds navigation plus load. Default: 30s.
	Timeout time.Duration

	// Block lists resource types not worth downloading while rendering
	// (images, fonts, media, stylesheets). Default: images, fonts, media.
	Block []string

	Logger *slog.Logger
}

func (c *RenderConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Block == nil {
		c.Block = []string{"images", "fonts", "media"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer returns the DOM of pages after their scripts ran. The browser
// starts on first use and is shared by all calls until Close.
type Renderer struct {
	cfg     RenderConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewRenderer creates a Renderer. No browser is started yet.
func NewRenderer(cfg RenderConfig) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

func (r *Renderer) ensure() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("fetch: launch chrome: %w", err)
		}
		wsURL = u
		r.lnch = l
		r.cfg.Logger.Info("fetch: launched local chrome", "url", wsURL)
	} else {
		r.cfg.Logger.Info("fetch: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("fetch: connect chrome: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		r.cfg.Logger.Warn("fetch: ignore cert errors failed", "error", err)
	}
	r.browser = b
	return b, nil
}

// Render navigates a fresh stealth tab to url and returns its outer HTML.
func (r *Renderer) Render(ctx context.Context, url string) ([]byte, error) {
	b, err := r.ensure()
	if err != nil {
		return nil, err
	}
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("fetch: open tab: %w", err)
	}
	defer page.Close()

	if len(r.cfg.Block) > 0 {
		router := blockResources(page, r.cfg.Block)
		defer router.Stop()
	}

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	p := page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("fetch: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		r.cfg.Logger.Warn("fetch: wait load", "url", url, "error", err)
	}
	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("fetch: read dom: %w", err)
	}
	return []byte(html), nil
}

// Get renders url. Failures yield an empty body and are logged. A rendered
// page reports status 200.
func (r *Renderer) Get(ctx context.Context, url string) ([]byte, int) {
	body, err := r.Render(ctx, url)
	if err != nil {
		r.cfg.Logger.Warn("fetch: render failed", "url", url, "error", err)
		return nil, 0
	}
	r.cfg.Logger.Debug("fetch: rendered", "url", url, "size", len(body))
	return body, 200
}

// Close shuts the browser down. Later calls fail with ErrRendererClosed.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Kill()
		r.lnch.Cleanup()
		r.lnch = nil
	}
	return err
}

func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	block := make(map[string]bool, len(types))
	for _, t := range types {
		block[strings.ToLower(t)] = true
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(block, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func shouldBlock(block map[string]bool, resType string) bool {
	switch t := strings.ToLower(resType); t {
	case "image":
		return block["images"]
	case "font":
		return block["fonts"]
	case "media":
		return block["media"]
	case "stylesheet":
		return block["stylesheets"]
	default:
		return block[t]
	}
}
