package rewrite

import (
	"html"
	"regexp"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
	"github.com/hazyhaar/cdnmirror/extract"
)

var (
	moduleNameRe = regexp.MustCompile(`^/static/(?:version\d+/)?frontend/[^/]+/[^/]+/[^/]+/(.+?)\.js$`)
	dataAttrRe   = regexp.MustCompile(`(?i)(\sdata-[\w-]+=)(?:'([^']*)'|"([^"]*)")`)
	srcsetAttrRe = regexp.MustCompile(`(?i)(\s(?:image)?srcset=)(['"])([^'"]+)(['"])`)
)

// processURL rewrites every occurrence of one URL across the contexts it
// may appear in. It returns the mirror URL when the document changed.
func (r *run) processURL(raw string) string {
	if r.onCDN(raw) {
		return ""
	}
	norm := assetpath.Normalize(raw)
	mirror, ok := r.gate(norm)
	if !ok {
		return ""
	}

	before := r.doc
	n := 0
	for _, v := range r.variants(norm) {
		if strings.Contains(v, "://") {
			if c := strings.Count(r.doc, v); c > 0 {
				r.doc = strings.ReplaceAll(r.doc, v, mirror)
				n += c
			}
			continue
		}
		n += r.replaceContexts(v, mirror)
	}
	if strings.HasSuffix(pathOnly(norm), ".js") {
		n += r.rewriteModuleMap(norm, mirror)
	}
	n += r.rewriteDataJSON(norm, mirror)
	n += r.rewriteSrcsets(norm, mirror)

	if r.doc == before {
		return ""
	}
	r.record(norm, mirror, n)
	r.memo.MarkRewritten(norm)
	r.logger.Debug("rewrite: url", "url", norm, "mirror", mirror, "occurrences", n)
	return mirror
}

// variants lists the literal forms a normalized URL may take in the
// document.
func (r *run) variants(norm string) []string {
	out := []string{norm, strings.TrimPrefix(norm, "/")}
	for _, b := range r.engine.bases {
		out = append(out, b+norm)
	}
	return out
}

func contextPatterns(v string) []*regexp.Regexp {
	q := regexp.QuoteMeta(v)
	return []*regexp.Regexp{
		regexp.MustCompile(`(\s(?i:src|href|data-[\w-]+)=")` + q + `(")`),
		regexp.MustCompile(`(\s(?i:src|href|data-[\w-]+)=')` + q + `(')`),
		regexp.MustCompile(`(url\(\s*")` + q + `("\s*\))`),
		regexp.MustCompile(`(url\(\s*')` + q + `('\s*\))`),
		regexp.MustCompile(`(url\(\s*)` + q + `(\s*\))`),
		regexp.MustCompile(`(text!")` + q + `(")`),
		regexp.MustCompile(`(text!')` + q + `(')`),
		regexp.MustCompile(`(["'])` + q + `(["'])`),
	}
}

func (r *run) replaceContexts(v, mirror string) int {
	if !strings.Contains(r.doc, v) {
		return 0
	}
	n := 0
	for _, re := range contextPatterns(v) {
		var c int
		r.doc, c = replaceAllSubmatchFunc(re, r.doc, func(sub []string) (string, bool) {
			return sub[1] + mirror + sub[2], true
		})
		n += c
	}
	return n
}

// rewriteModuleMap rewrites loader path entries keyed by the module name
// derived from a themed static path. The key is kept; the value must be
// the URL itself, with or without its .js suffix.
func (r *run) rewriteModuleMap(norm, mirror string) int {
	m := moduleNameRe.FindStringSubmatch(norm)
	if m == nil {
		return 0
	}
	names := []string{m[1]}
	if alt := strings.ReplaceAll(m[1], "/", "_"); alt != m[1] {
		names = append(names, alt)
	}
	bare := strings.TrimSuffix(norm, ".js")
	bareMirror := strings.TrimSuffix(mirror, ".js")

	n := 0
	for _, name := range names {
		re := regexp.MustCompile(`(['"])` + regexp.QuoteMeta(name) + `(['"]\s*:\s*['"])([^'"]+)(['"])`)
		var c int
		r.doc, c = replaceAllSubmatchFunc(re, r.doc, func(sub []string) (string, bool) {
			switch sub[3] {
			case norm:
				return sub[1] + name + sub[2] + mirror + sub[4], true
			case bare:
				return sub[1] + name + sub[2] + bareMirror + sub[4], true
			}
			return "", false
		})
		n += c
	}
	return n
}

// rewriteDataJSON rewrites exact-value matches inside data-* attributes
// holding JSON, in the entity-quoted and slash-escaped forms the generic
// contexts cannot see.
func (r *run) rewriteDataJSON(norm, mirror string) int {
	forms := [][2]string{
		{"&quot;" + norm + "&quot;", "&quot;" + mirror + "&quot;"},
		{`"` + escapeSlashes(norm) + `"`, `"` + escapeSlashes(mirror) + `"`},
		{"&quot;" + escapeSlashes(norm) + "&quot;", "&quot;" + escapeSlashes(mirror) + "&quot;"},
	}
	n := 0
	r.doc, _ = replaceAllSubmatchFunc(dataAttrRe, r.doc, func(sub []string) (string, bool) {
		quote, val := "'", sub[2]
		if sub[3] != "" {
			quote, val = `"`, sub[3]
		}
		if !strings.ContainsAny(val, "{[") || !containsLeaf(val, norm) {
			return "", false
		}
		out := val
		for _, f := range forms {
			if c := strings.Count(out, f[0]); c > 0 {
				out = strings.ReplaceAll(out, f[0], f[1])
				n += c
			}
		}
		if out == val {
			return "", false
		}
		return sub[1] + quote + out + quote, true
	})
	return n
}

func containsLeaf(attrVal, norm string) bool {
	v, err := DecodeJSON(html.UnescapeString(attrVal))
	if err != nil {
		return false
	}
	for _, s := range Walk(v) {
		if s == norm {
			return true
		}
	}
	return false
}

// rewriteSrcsets rewrites srcset entries whose URL normalizes to norm,
// keeping descriptors.
func (r *run) rewriteSrcsets(norm, mirror string) int {
	n := 0
	r.doc, _ = replaceAllSubmatchFunc(srcsetAttrRe, r.doc, func(sub []string) (string, bool) {
		entries := strings.Split(sub[3], ",")
		changed := false
		for i, entry := range entries {
			f := strings.Fields(entry)
			if len(f) == 0 {
				continue
			}
			if got, ok := r.local(f[0]); !ok || got != norm {
				continue
			}
			f[0] = mirror
			entries[i] = strings.Join(f, " ")
			changed = true
			n++
		}
		if !changed {
			return "", false
		}
		for i := range entries {
			entries[i] = strings.TrimSpace(entries[i])
		}
		return sub[1] + sub[2] + strings.Join(entries, ", ") + sub[4], true
	})
	return n
}

// srcsetURLs returns the URL tokens of every srcset attribute in doc.
func srcsetURLs(doc string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range srcsetAttrRe.FindAllStringSubmatch(doc, -1) {
		for _, u := range extract.SrcsetURLs(m[3]) {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}
