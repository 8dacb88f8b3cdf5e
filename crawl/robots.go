package crawl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
)

// robots caches robots.txt rules per host for one crawl. Rules are fetched
// through the crawl's own Fetcher; a missing or unreachable file allows
// everything.
type robots struct {
	fetcher   Fetcher
	userAgent string
	logger    *slog.Logger
	cache     map[string]*robotstxt.RobotsData
}

func newRobots(f Fetcher, userAgent string, logger *slog.Logger) *robots {
	if userAgent == "" {
		userAgent = "*"
	}
	return &robots{fetcher: f, userAgent: userAgent, logger: logger, cache: make(map[string]*robotstxt.RobotsData)}
}

func (r *robots) allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	data, ok := r.cache[host]
	if !ok {
		data = r.load(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
		r.cache[host] = data
	}
	if data == nil {
		return true
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return data.TestAgent(p, r.userAgent)
}

func (r *robots) load(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	body, status := r.fetcher.Get(ctx, robotsURL)
	if status == 0 {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		r.logger.Warn("crawl: robots.txt parse failed", "url", robotsURL, "error", err)
		return nil
	}
	return data
}
