// Package crawl discovers asset paths by walking a storefront's pages.
//
// A crawl is depth first and bounded by a page budget. Every visited page
// is run through the asset extractor and its same-host links are followed,
// product and category pages first. Optionally the catalog records are
// walked afterwards into the same set.
//
//	c := crawl.New(fetch.New(fetch.Config{}), crawl.WithRecords(walker))
//	paths := c.Analyze(ctx, "https://shop.example.com/", 5, true)
package crawl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/cdnmirror/assetpath"
	"github.com/hazyhaar/cdnmirror/extract"
	"github.com/hazyhaar/cdnmirror/records"
)

// DefaultMaxPages bounds a crawl when the caller passes 0.
const DefaultMaxPages = 5

// Fetcher retrieves one page. It never fails: problems yield an empty
// body, and status is 0 when no response arrived.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, int)
}

// Stats summarises one crawl.
type Stats struct {
	Pages   int           `json:"pages"`   // fetched with a 2xx body
	Failed  int           `json:"failed"`  // empty body or bad status
	Blocked int           `json:"blocked"` // disallowed by robots.txt
	Assets  int           `json:"assets"`  // distinct paths returned
	Records records.Stats `json:"records"`
}

// Crawler crawls sites. Its configuration is read-only after New, so one
// Crawler may run several crawls concurrently.
type Crawler struct {
	fetcher   Fetcher
	extractor *extract.Extractor
	walker    *records.Walker
	siteBase  string
	limiter   *rate.Limiter
	robots    bool
	userAgent string
	priority  []string
	logger    *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithSiteBase sets the URL crawled when Analyze gets no start URL.
func WithSiteBase(base string) Option {
	return func(c *Crawler) { c.siteBase = base }
}

// WithExtractor replaces the default asset extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(c *Crawler) { c.extractor = e }
}

// WithRecords sets the catalog walker used when records are requested.
func WithRecords(w *records.Walker) Option {
	return func(c *Crawler) { c.walker = w }
}

// WithRateLimit waits for a token before each page fetch. rps <= 0
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Crawler) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRobots makes the crawl honour robots.txt for userAgent. Disallowed
// pages still consume the page budget.
func WithRobots(userAgent string) Option {
	return func(c *Crawler) {
		c.robots = true
		c.userAgent = userAgent
	}
}

// WithPriority replaces the path fragments whose links are followed first.
func WithPriority(fragments ...string) Option {
	return func(c *Crawler) { c.priority = fragments }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// DefaultPriority marks product and category detail pages.
var DefaultPriority = []string{"/catalog/product/view/", "/catalog/category/view/"}

// New creates a Crawler using f for page retrieval.
func New(f Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:  f,
		priority: DefaultPriority,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.extractor == nil {
		c.extractor = extract.New(extract.WithLogger(c.logger))
	}
	return c
}

// Analyze crawls from startURL, visiting at most maxPages pages, and
// returns the sorted distinct asset paths found. With includeRecords the
// catalog is walked as well.
func (c *Crawler) Analyze(ctx context.Context, startURL string, maxPages int, includeRecords bool) []string {
	paths, _ := c.AnalyzeStats(ctx, startURL, maxPages, includeRecords)
	return paths
}

// AnalyzeStats is Analyze returning the crawl statistics too.
func (c *Crawler) AnalyzeStats(ctx context.Context, startURL string, maxPages int, includeRecords bool) ([]string, Stats) {
	if startURL == "" {
		startURL = c.siteBase
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	set := assetpath.NewSet()
	r := &run{
		crawler: c,
		max:     maxPages,
		visited: make(map[string]bool),
		set:     set,
	}

	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		c.logger.Error("crawl: invalid start url", "url", startURL, "error", err)
	} else {
		if start.Path == "" {
			start.Path = "/"
		}
		start.Fragment = ""
		r.origin = start.Scheme + "://" + start.Host + "/"
		r.host = strings.ToLower(start.Hostname())
		if c.robots {
			r.robots = newRobots(c.fetcher, c.userAgent, c.logger)
		}
		c.logger.Info("crawl: start", "url", start.String(), "max_pages", maxPages)
		r.visit(ctx, start.String())
	}

	if includeRecords {
		if c.walker == nil {
			c.logger.Warn("crawl: records requested but no record source configured")
		} else {
			r.stats.Records = c.walker.Walk(ctx, set)
		}
	}

	out := set.Sorted()
	r.stats.Assets = len(out)
	c.logger.Info("crawl: done", "pages", r.stats.Pages, "failed", r.stats.Failed,
		"blocked", r.stats.Blocked, "assets", r.stats.Assets)
	return out, r.stats
}

// run is the state of one crawl.
type run struct {
	crawler *Crawler
	max     int
	count   int
	visited map[string]bool
	set     *assetpath.Set
	origin  string
	host    string
	robots  *robots
	stats   Stats
}

func (r *run) visit(ctx context.Context, pageURL string) {
	if ctx.Err() != nil || r.visited[pageURL] || r.count >= r.max {
		return
	}
	r.visited[pageURL] = true
	r.count++
	c := r.crawler
	log := c.logger

	if r.robots != nil && !r.robots.allowed(ctx, pageURL) {
		r.stats.Blocked++
		log.Info("crawl: disallowed by robots.txt", "url", pageURL)
		return
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("crawl: rate limiter", "error", err)
			return
		}
	}

	body, status := c.fetcher.Get(ctx, pageURL)
	if len(body) == 0 || status < 200 || status >= 300 {
		r.stats.Failed++
		log.Warn("crawl: fetch failed", "url", pageURL, "status", status)
		return
	}
	r.stats.Pages++

	assets := c.extractor.Extract(string(body), r.origin)
	n := r.set.AddAll(assets)
	links := c.links(pageURL, r.host, body)
	log.Debug("crawl: page", "url", pageURL, "assets", n, "links", len(links), "visited", r.count)

	for _, l := range links {
		if r.count >= r.max {
			break
		}
		r.visit(ctx, l)
	}
}
