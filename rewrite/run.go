package rewrite

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

// run is the state of one Rewrite call.
type run struct {
	engine   *Engine
	doc      string
	cdn      string
	memo     *Memo
	count    int
	replaced map[string]string
	skipped  []string
	logger   *slog.Logger
}

// gate applies the memo and critical-file rules to a normalized URL and
// returns its mirror URL when it may be rewritten.
func (r *run) gate(norm string) (string, bool) {
	if !assetpath.HasPrefix(norm) || r.memo.Seen(norm) {
		return "", false
	}
	if r.engine.IsCritical(norm) {
		r.memo.MarkSkipped(norm)
		r.skipped = append(r.skipped, norm)
		r.logger.Debug("rewrite: critical file kept on origin", "url", norm)
		return "", false
	}
	m := assetpath.ToMirrorURL(norm, r.cdn)
	return m, m != ""
}

// allowed is gate without the memo requirement, for passes that only
// touch their own context. Skipped URLs stay skipped.
func (r *run) allowed(norm string) (string, bool) {
	if !assetpath.HasPrefix(norm) || r.memo.State(norm) == Skipped {
		return "", false
	}
	if r.engine.IsCritical(norm) {
		return "", false
	}
	m := assetpath.ToMirrorURL(norm, r.cdn)
	return m, m != ""
}

// local normalizes u when it is root-relative or absolute on one of the
// site bases, and reports whether it lies under a namespace. URLs already
// on the CDN are never local, even when the CDN shares the site host.
func (r *run) local(u string) (string, bool) {
	if r.onCDN(u) {
		return "", false
	}
	if strings.Contains(u, "://") || strings.HasPrefix(u, "//") {
		lu, ok := strings.ToLower(u), false
		for _, b := range r.engine.bases {
			if strings.HasPrefix(lu, strings.ToLower(b)+"/") {
				ok = true
				break
			}
		}
		if !ok {
			return "", false
		}
	}
	norm := assetpath.Normalize(u)
	return norm, assetpath.HasPrefix(norm)
}

func (r *run) record(norm, mirror string, n int) {
	r.count += n
	r.replaced[norm] = mirror
}

// replaceAllSubmatchFunc replaces each match of re in s for which fn
// returns true. sub holds the match followed by its groups ("" when a
// group did not participate).
func replaceAllSubmatchFunc(re *regexp.Regexp, s string, fn func(sub []string) (string, bool)) (string, int) {
	idx := re.FindAllStringSubmatchIndex(s, -1)
	if len(idx) == 0 {
		return s, 0
	}
	var b strings.Builder
	last, n := 0, 0
	for _, loc := range idx {
		sub := make([]string, len(loc)/2)
		for i := range sub {
			if loc[2*i] >= 0 {
				sub[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		repl, ok := fn(sub)
		if !ok {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
		n++
	}
	if n == 0 {
		return s, 0
	}
	b.WriteString(s[last:])
	return b.String(), n
}

// uniqueGroup returns the distinct values of capture group g, in order.
func uniqueGroup(re *regexp.Regexp, s string, g int) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if g < len(m) && m[g] != "" && !seen[m[g]] {
			seen[m[g]] = true
			out = append(out, m[g])
		}
	}
	return out
}

func escapeSlashes(s string) string   { return strings.ReplaceAll(s, "/", `\/`) }
func unescapeSlashes(s string) string { return strings.ReplaceAll(s, `\/`, "/") }

func (r *run) onCDN(u string) bool {
	base := strings.ToLower(strings.TrimRight(r.cdn, "/"))
	return base != "" && strings.HasPrefix(strings.ToLower(u), base+"/")
}

// originMedia maps v, a possibly slash-escaped media URL on the site, onto
// the CDN. The mirror URL keeps the escaping of v. Values on the CDN, on
// other hosts, outside /media/ or kept on origin are refused.
func (r *run) originMedia(v string) (norm, mirror string, ok bool) {
	plain := unescapeSlashes(v)
	norm, ok = r.local(plain)
	if !ok || !strings.HasPrefix(norm, assetpath.MediaPrefix) {
		return "", "", false
	}
	if mirror, ok = r.allowed(norm); !ok {
		return "", "", false
	}
	if plain != v {
		mirror = escapeSlashes(mirror)
	}
	return norm, mirror, true
}

func pathOnly(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
