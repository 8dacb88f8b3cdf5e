package crawl

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

var skipSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Links returns the crawlable links of a page: absolute, fragment-free,
// on host, outside the asset namespaces, deduplicated, priority pages
// first and document order otherwise.
func (c *Crawler) Links(pageURL string, body []byte) []string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	return c.links(pageURL, strings.ToLower(u.Hostname()), body)
}

func (c *Crawler) links(pageURL, host string, body []byte) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		c.logger.Debug("crawl: html parse failed", "url", pageURL, "error", err)
		return nil
	}
	doc := goquery.NewDocumentFromNode(root)

	var first, rest []string
	seen := map[string]bool{pageURL: true}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || hasSkipScheme(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment, abs.RawFragment = "", ""
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if strings.ToLower(abs.Hostname()) != host || assetpath.HasPrefix(abs.EscapedPath()) {
			return
		}
		if abs.Path == "" {
			abs.Path = "/"
		}
		link := abs.String()
		if seen[link] {
			return
		}
		seen[link] = true
		if c.isPriority(abs.Path) {
			first = append(first, link)
		} else {
			rest = append(rest, link)
		}
	})
	return append(first, rest...)
}

func hasSkipScheme(href string) bool {
	l := strings.ToLower(href)
	for _, s := range skipSchemes {
		if strings.HasPrefix(l, s) {
			return true
		}
	}
	return false
}

func (c *Crawler) isPriority(p string) bool {
	for _, f := range c.priority {
		if strings.Contains(p, f) {
			return true
		}
	}
	return false
}
