// Package extract pulls asset-shaped URLs out of raw documents.
//
// Extraction is pattern driven: an ordered table of rules is applied to the
// document text, every candidate goes through the asset classifier, and only
// paths under /static/ or /media/ are emitted. No DOM is built, so malformed
// fragments are tolerated.
//
// Usage:
//
//	paths := extract.New().Extract(html, "https://shop.example.com/")
//
// The result is unsorted and may contain duplicates; callers accumulate it
// into an assetpath.Set.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

// Rule yields raw candidate URLs from a document.
type Rule interface {
	Name() string
	Candidates(doc string) []string
}

// PatternRule is a regexp rule. Group selects the capture group holding the
// URL (0 for the whole match). Srcset splits the captured value as a
// srcset list and keeps each URL token.
type PatternRule struct {
	RuleName string
	Pattern  *regexp.Regexp
	Group    int
	Srcset   bool
}

func (r PatternRule) Name() string { return r.RuleName }

func (r PatternRule) Candidates(doc string) []string {
	var out []string
	for _, m := range r.Pattern.FindAllStringSubmatch(doc, -1) {
		if r.Group >= len(m) {
			continue
		}
		v := m[r.Group]
		if r.Srcset {
			out = append(out, SrcsetURLs(v)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// FuncRule adapts a function into a Rule.
type FuncRule struct {
	RuleName string
	Fn       func(doc string) []string
}

func (r FuncRule) Name() string                  { return r.RuleName }
func (r FuncRule) Candidates(doc string) []string { return r.Fn(doc) }

// Extractor applies its rules in order.
type Extractor struct {
	rules  []Rule
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRules replaces the rule table.
func WithRules(rules ...Rule) Option {
	return func(e *Extractor) { e.rules = rules }
}

// WithExtraRules appends rules after the defaults.
func WithExtraRules(rules ...Rule) Option {
	return func(e *Extractor) { e.rules = append(e.rules, rules...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor with DefaultRules.
func New(opts ...Option) *Extractor {
	e := &Extractor{rules: DefaultRules()}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Rules returns the rule table in application order.
func (e *Extractor) Rules() []Rule { return e.rules }

// Extract returns the asset paths referenced by doc. Absolute URLs on a
// host other than siteBase's are dropped; data: URIs are always dropped.
func (e *Extractor) Extract(doc, siteBase string) []string {
	if doc == "" {
		return nil
	}
	var out []string
	for _, r := range e.rules {
		n := 0
		for _, cand := range r.Candidates(doc) {
			if p, ok := accept(cand, siteBase); ok {
				out = append(out, p)
				n++
			}
		}
		if n > 0 {
			e.logger.Debug("extract: rule matched", "rule", r.Name(), "assets", n)
		}
	}
	return out
}

// Extract runs the default extractor.
func Extract(doc, siteBase string) []string {
	return New().Extract(doc, siteBase)
}

func accept(cand, siteBase string) (string, bool) {
	cand = strings.TrimSpace(cand)
	if cand == "" || strings.HasPrefix(strings.ToLower(cand), "data:") {
		return "", false
	}
	c := assetpath.ClassifyFrom(cand, siteBase)
	if !c.IsAsset() {
		return "", false
	}
	return c.Path, true
}

// SrcsetURLs splits a srcset value and returns the URL token of each entry,
// dropping width/density descriptors.
func SrcsetURLs(v string) []string {
	var out []string
	for _, entry := range strings.Split(v, ",") {
		if f := strings.Fields(entry); len(f) > 0 {
			out = append(out, f[0])
		}
	}
	return out
}
