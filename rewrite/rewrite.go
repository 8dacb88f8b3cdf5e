// Package rewrite points asset references in HTML documents at a CDN
// mirror.
//
// A Rewrite call runs an ordered list of passes over the document text.
// Each pass targets one syntactic context (tag attributes, CSS url(),
// embedded JSON, module loader declarations, srcset lists, escaped JSON).
// A per-call Memo guarantees that a literal URL handled by one pass is not
// handled again by a later one, and that critical files stay on origin.
//
// Usage:
//
//	res := rewrite.Rewrite(html, rewrite.Options{
//		CDNBaseURL:  "https://cdn.jsdelivr.net/gh/acme/assets@main/",
//		SiteBaseURL: "https://shop.example.com/",
//	})
//	fmt.Println(res.Count, res.HTML)
//
// Rewriting is best effort: malformed fragments are logged and left as is,
// and the worst outcome is zero replacements.
package rewrite

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

// DefaultCriticalFiles are loader bootstrap files that must keep loading
// from origin. Each entry also matches with a "/static" prefix.
var DefaultCriticalFiles = []string{
	"/requirejs/require.js",
	"/mage/requirejs/mixins.js",
	"/mage/polyfill.js",
	"/mage/bootstrap.js",
}

// SafeNamespaces lift the critical-file skip for any URL containing one of
// them.
var SafeNamespaces = []string{
	"jquery/ui-modules/",
	"Magento_Ui/js/",
	"mage/utils/",
}

// Options configures a rewrite.
type Options struct {
	CDNBaseURL        string
	SiteBaseURL       string
	SecureSiteBaseURL string
	// CriticalFiles replaces DefaultCriticalFiles when non-nil.
	CriticalFiles []string
	// CustomURLs are rewritten in order after the structural passes.
	CustomURLs []string
	Logger     *slog.Logger
}

// Result is the outcome of one rewrite.
type Result struct {
	HTML  string
	Count int
	// Replaced maps each rewritten normalized URL to its mirror URL.
	Replaced map[string]string
	// Skipped lists critical URLs left on origin, in encounter order.
	Skipped []string
}

// Engine holds rewrite configuration. It is safe for concurrent use: all
// per-document state lives in the call.
type Engine struct {
	opts     Options
	critical map[string]bool
	bases    []string
	logger   *slog.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{opts: opts, logger: opts.Logger}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	files := opts.CriticalFiles
	if files == nil {
		files = DefaultCriticalFiles
	}
	e.critical = make(map[string]bool, 2*len(files))
	for _, f := range files {
		f = "/" + strings.TrimLeft(strings.TrimSpace(f), "/")
		e.critical[f] = true
		e.critical["/static"+f] = true
	}

	seen := map[string]bool{}
	for _, b := range []string{opts.SiteBaseURL, opts.SecureSiteBaseURL} {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b != "" && !seen[b] {
			seen[b] = true
			e.bases = append(e.bases, b)
		}
	}
	return e
}

// Rewrite runs the engine on doc.
func Rewrite(doc string, opts Options) Result {
	return New(opts).Rewrite(doc)
}

// IsCritical reports whether u must stay on origin. Matching is exact on
// the normalized path; SafeNamespaces override it.
func (e *Engine) IsCritical(u string) bool {
	p := assetpath.Normalize(u)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	for _, ns := range SafeNamespaces {
		if strings.Contains(p, ns) {
			return false
		}
	}
	return e.critical[p]
}

// Rewrite runs every pass over doc. An empty CDN base returns doc as is.
func (e *Engine) Rewrite(doc string) Result {
	res := Result{HTML: doc, Replaced: map[string]string{}}
	if strings.TrimSpace(e.opts.CDNBaseURL) == "" || doc == "" {
		return res
	}

	r := &run{
		engine:   e,
		doc:      doc,
		cdn:      e.opts.CDNBaseURL,
		memo:     NewMemo(),
		replaced: res.Replaced,
		logger:   e.logger,
	}
	for _, p := range passes {
		r.apply(p)
	}

	res.HTML = r.doc
	res.Count = r.count
	res.Skipped = r.skipped
	if r.count > 0 {
		e.logger.Info("rewrite: replaced urls", "count", r.count, "distinct", len(r.replaced))
		e.logger.Debug("rewrite: replacement detail", "urls", sample(r.replaced, 50))
	}
	return res
}

// apply runs one pass; a panic inside a pass discards that pass only.
func (r *run) apply(p pass) {
	saved, savedCount := r.doc, r.count
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("rewrite: pass aborted", "pass", p.name, "error", fmt.Sprint(v))
			r.doc, r.count = saved, savedCount
		}
	}()
	p.apply(r)
}

func sample(m map[string]string, n int) []string {
	out := make([]string, 0, min(n, len(m)))
	for k, v := range m {
		if len(out) == n {
			break
		}
		out = append(out, k+" => "+v)
	}
	return out
}
