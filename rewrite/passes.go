package rewrite

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
	"github.com/hazyhaar/cdnmirror/clientpatch"
	"github.com/hazyhaar/cdnmirror/extract"
)

type pass struct {
	name  string
	apply func(*run)
}

// passes run in this order. Earlier passes mark the memo that later passes
// consult, so the order is part of the behaviour.
var passes = []pass{
	{"gallery-json", (*run).galleryJSON},
	{"requirejs-config", (*run).requireConfigScript},
	{"requiremodule", (*run).requireModules},
	{"tag-attributes", (*run).tagAttributes},
	{"media-images", (*run).mediaImages},
	{"config-paths", (*run).configPaths},
	{"json-url", (*run).jsonURLKeys},
	{"custom-urls", (*run).customURLs},
	{"css-background", (*run).cssBackgrounds},
	{"data-json", (*run).dataJSONAttributes},
	{"escaped-json", (*run).escapedJSON},
	{"lazy-and-srcset", (*run).lazyAndSrcset},
	{"product-page", (*run).productPage},
	{"define-wrapper", (*run).defineWrapper},
}

// PassNames returns the pass names in execution order.
func PassNames() []string {
	out := make([]string, len(passes))
	for i, p := range passes {
		out[i] = p.name
	}
	return out
}

// replaceJSONString swaps the JSON string literal old for repl, in plain and
// slash-escaped forms.
func replaceJSONString(s, old, repl string) (string, int) {
	n := 0
	for _, f := range [][2]string{
		{`"` + old + `"`, `"` + repl + `"`},
		{`"` + escapeSlashes(old) + `"`, `"` + escapeSlashes(repl) + `"`},
	} {
		if c := strings.Count(s, f[0]); c > 0 {
			s = strings.ReplaceAll(s, f[0], f[1])
			n += c
		}
	}
	return s, n
}

// 1. Gallery placeholder JSON.
func (r *run) galleryJSON() {
	r.doc, _ = replaceAllSubmatchFunc(extract.GalleryAttrPattern, r.doc, func(sub []string) (string, bool) {
		raw := sub[1]
		items, err := extract.DecodeGallery(raw)
		if err != nil {
			r.logger.Debug("rewrite: gallery json left unchanged", "error", err)
			return "", false
		}
		out := raw
		for _, it := range items {
			for _, u := range it.URLs() {
				norm, m, ok := r.originMedia(u)
				if !ok {
					continue
				}
				var n int
				if out, n = replaceJSONString(out, u, m); n > 0 {
					r.record(norm, m, n)
				}
			}
		}
		if out == raw {
			return "", false
		}
		out = strings.ReplaceAll(out, "'", "&#39;")
		return strings.Replace(sub[0], raw, out, 1), true
	})
}

var requireConfigSrcRe = regexp.MustCompile(`(?i)<script[^>]*\ssrc=['"]([^'"]*requirejs-config\.js[^'"]*)['"][^>]*>`)

// 2. Module loader config script, plus the base URL patch after it.
func (r *run) requireConfigScript() {
	for _, u := range uniqueGroup(requireConfigSrcRe, r.doc, 1) {
		mirror := r.processURL(u)
		if mirror == "" || clientpatch.Has(r.doc, clientpatch.RequireConfig) {
			continue
		}
		tag := regexp.MustCompile(`(?i)<script[^>]*\ssrc=['"]` + regexp.QuoteMeta(mirror) + `['"][^>]*>\s*</script>`)
		loc := tag.FindStringIndex(r.doc)
		if loc == nil {
			continue
		}
		r.doc = r.doc[:loc[1]] + clientpatch.Script(clientpatch.RequireConfig, r.cdn) + r.doc[loc[1]:]
		r.logger.Debug("rewrite: loader base patch injected", "config", mirror)
	}
}

var (
	requireModuleRe = regexp.MustCompile(`(?i)\sdata-requiremodule=['"]([^'"]+)['"]`)
	textPluginRe    = regexp.MustCompile(`text!(['"]?)([^'"!\s]+)(['"]?)`)
)

// moduleShapes are the themed locations a bare module name may resolve
// to. "*" stands for the area/theme/locale segments.
var moduleShapes = []string{
	"/static/frontend/*/%s.js",
	"/static/frontend/*/%s.min.js",
	"/static/frontend/*/%s/main.js",
	"/static/frontend/*/%s/main.min.js",
	"/static/frontend/*/mage/%s.js",
	"/static/frontend/*/mage/utils/%s.js",
	"/static/frontend/*/jquery/%s.js",
	"/static/frontend/*/jquery/ui-modules/%s.js",
	"/static/frontend/*/Magento_Ui/js/%s.js",
	"/static/frontend/*/Magento_Ui/js/lib/%s.js",
}

func shapePattern(shape, module string) *regexp.Regexp {
	q := regexp.QuoteMeta(fmt.Sprintf(shape, module))
	q = strings.Replace(q, `\*`, `[^'"]+`, 1)
	return regexp.MustCompile(`['"](` + q + `)['"]`)
}

// 3. data-requiremodule values and text! plugin references.
func (r *run) requireModules() {
	for _, v := range uniqueGroup(requireModuleRe, r.doc, 1) {
		if strings.HasPrefix(v, "/") {
			r.processURL(v)
			continue
		}
		for _, shape := range moduleShapes {
			for _, c := range uniqueGroup(shapePattern(shape, v), r.doc, 1) {
				r.processURL(c)
			}
		}
	}

	r.doc, _ = replaceAllSubmatchFunc(textPluginRe, r.doc, func(sub []string) (string, bool) {
		norm := assetpath.Normalize(sub[2])
		if !assetpath.HasPrefix(sub[2]) {
			return "", false
		}
		m, ok := r.allowed(norm)
		if !ok {
			return "", false
		}
		r.record(norm, m, 1)
		return "text!" + sub[1] + m + sub[3], true
	})
}

type tagSweep struct {
	attr string
	re   *regexp.Regexp
	only string
}

var tagSweeps = []tagSweep{
	{"src", regexp.MustCompile(`(?i)<script\b[^>]*\ssrc=['"]([^'"]+)['"][^>]*>`), ""},
	{"data-requiremodule", regexp.MustCompile(`(?i)<script\b[^>]*\sdata-requiremodule=['"]([^'"]+)['"][^>]*>`), ""},
	{"href", regexp.MustCompile(`(?i)<link\b[^>]*\shref=['"]([^'"]+)['"][^>]*>`), ""},
}

var mediaImageSweep = tagSweep{"src", regexp.MustCompile(`(?i)<img\b[^>]*\ssrc=['"]([^'"]+)['"][^>]*>`), assetpath.MediaPrefix}

// sweep rewrites one attribute of the tags matched by s. Every identical
// copy of a rewritten tag is updated.
func (r *run) sweep(s tagSweep) {
	for _, m := range s.re.FindAllStringSubmatch(r.doc, -1) {
		tag, u := m[0], m[1]
		norm, ok := r.local(u)
		if !ok || (s.only != "" && !strings.HasPrefix(norm, s.only)) {
			continue
		}
		mirror, ok := r.gate(norm)
		if !ok {
			continue
		}
		newTag := strings.ReplaceAll(tag, s.attr+`="`+u+`"`, s.attr+`="`+mirror+`"`)
		newTag = strings.ReplaceAll(newTag, s.attr+`='`+u+`'`, s.attr+`='`+mirror+`'`)
		if newTag == tag {
			continue
		}
		r.doc = strings.ReplaceAll(r.doc, tag, newTag)
		r.record(norm, mirror, 1)
		r.memo.MarkRewritten(norm)
	}
}

// 4. script src, script data-requiremodule, link href.
func (r *run) tagAttributes() {
	for _, s := range tagSweeps {
		r.sweep(s)
	}
}

// 5. Bare media images.
func (r *run) mediaImages() { r.sweep(mediaImageSweep) }

var configPathRe = regexp.MustCompile(`"([^"]+\.(?:js|css|png|jpe?g|gif|svg))"`)

// 6. Quoted asset paths in documents carrying loader configuration.
func (r *run) configPaths() {
	if !strings.Contains(r.doc, "requirejs-config") {
		return
	}
	for _, u := range uniqueGroup(configPathRe, r.doc, 1) {
		if assetpath.HasPrefix(u) {
			r.processURL(u)
		}
	}
}

var jsonURLRe = regexp.MustCompile(`(\{[^}]+"url":\s*["'])([^"']+)(["'])`)

// 7. Inline JSON "url" keys.
func (r *run) jsonURLKeys() {
	r.doc, _ = replaceAllSubmatchFunc(jsonURLRe, r.doc, func(sub []string) (string, bool) {
		if !assetpath.HasPrefix(sub[2]) {
			return "", false
		}
		norm := assetpath.Normalize(sub[2])
		m, ok := r.allowed(norm)
		if !ok {
			return "", false
		}
		r.record(norm, m, 1)
		return sub[1] + m + sub[3], true
	})
}

// 8. Operator URLs, in the order given.
func (r *run) customURLs() {
	for _, u := range r.engine.opts.CustomURLs {
		u = strings.TrimSpace(u)
		if u == "" || r.memo.State(assetpath.Normalize(u)) == Rewritten {
			continue
		}
		if m := r.processURL(u); m != "" {
			r.logger.Debug("rewrite: custom url", "url", u, "mirror", m)
		}
	}
}

var backgroundRe = regexp.MustCompile(`(?i)background(?:-image)?\s*:\s*url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

// 9. CSS backgrounds.
func (r *run) cssBackgrounds() {
	for _, u := range uniqueGroup(backgroundRe, r.doc, 1) {
		if _, ok := r.local(u); !ok {
			continue
		}
		r.processURL(u)
	}
}

// 10. data-* attributes holding JSON.
func (r *run) dataJSONAttributes() {
	var leaves []string
	seen := map[string]bool{}
	for _, m := range dataAttrRe.FindAllStringSubmatch(r.doc, -1) {
		val := m[2]
		if m[3] != "" {
			val = m[3]
		}
		val = strings.TrimSpace(html.UnescapeString(val))
		if !strings.HasPrefix(val, "{") {
			continue
		}
		v, err := DecodeJSON(val)
		if err != nil {
			r.logger.Debug("rewrite: data attribute json left unchanged", "attr", strings.TrimSpace(m[1]), "error", err)
			continue
		}
		for _, s := range AssetLeaves(v) {
			if !seen[s] {
				seen[s] = true
				leaves = append(leaves, s)
			}
		}
	}
	for _, s := range leaves {
		r.processURL(s)
	}
}

var (
	escapedAssetRe = regexp.MustCompile(`"(\\/(?:static|media)\\/(?:[^"\\]|\\/)+)"`)
	arrayLiteralRe = regexp.MustCompile(`['"](/static/[^'"]+\.(?:js|css|png|jpe?g)(?:\?[^'"]*)?)['"]\s*[,\]]`)
)

// 11. Slash-escaped JSON literals, then quoted module paths in arrays.
func (r *run) escapedJSON() {
	r.doc, _ = replaceAllSubmatchFunc(escapedAssetRe, r.doc, func(sub []string) (string, bool) {
		plain := unescapeSlashes(sub[1])
		if !assetpath.HasAssetExtension(plain) {
			return "", false
		}
		norm := assetpath.Normalize(plain)
		m, ok := r.allowed(norm)
		if !ok {
			return "", false
		}
		r.record(norm, m, 1)
		return `"` + escapeSlashes(m) + `"`, true
	})

	for _, u := range uniqueGroup(arrayLiteralRe, r.doc, 1) {
		r.processURL(u)
	}
}

var dataSrcRe = regexp.MustCompile(`(?i)(\sdata-src=)(['"])(/(?:static|media)/[^'"]+)(['"])`)

// 12. Lazy-load data-src attributes, then srcset lists.
func (r *run) lazyAndSrcset() {
	r.doc, _ = replaceAllSubmatchFunc(dataSrcRe, r.doc, func(sub []string) (string, bool) {
		norm := assetpath.Normalize(sub[3])
		m, ok := r.allowed(norm)
		if !ok {
			return "", false
		}
		r.record(norm, m, 1)
		return sub[1] + sub[2] + m + sub[4], true
	})

	for _, u := range srcsetURLs(r.doc) {
		if _, ok := r.local(u); ok {
			r.processURL(u)
		}
	}
}

var (
	imgTagRe        = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	productClassRe  = regexp.MustCompile(`(?i)\sclass=['"][^'"]*\b(?:product-image-photo|fotorama__img)\b`)
	imgAttrRe       = regexp.MustCompile(`(?i)(\s(src|data-src|srcset)=)(['"])([^'"]*)(['"])`)
	galleryKeyRe    = regexp.MustCompile(`("(?:full|img|thumb)"\s*:\s*")([^"]+)(")`)
	bodyCloseRe     = regexp.MustCompile(`(?i)</body\s*>`)
	productMarkers  = []string{"catalog/product/view", "product-image-photo", `data-gallery-role="gallery-placeholder"`}
	requireScriptRe = regexp.MustCompile(`(?i)<script[^>]*\ssrc=['"][^'"]*require\.js[^'"]*['"][^>]*>\s*</script>`)
)

func isProductPage(doc string) bool {
	for _, m := range productMarkers {
		if strings.Contains(doc, m) {
			return true
		}
	}
	return false
}

// mirrorMediaValue maps a product media value onto the CDN and records it.
// It returns "" when the value stays as is.
func (r *run) mirrorMediaValue(v string) string {
	norm, m, ok := r.originMedia(v)
	if !ok {
		return ""
	}
	r.record(norm, unescapeSlashes(m), 1)
	return m
}

// 13. Product media images and gallery data, plus the client-side
// gallery patch.
func (r *run) productPage() {
	if !isProductPage(r.doc) {
		return
	}

	r.doc, _ = replaceAllSubmatchFunc(imgTagRe, r.doc, func(sub []string) (string, bool) {
		tag := sub[0]
		if !productClassRe.MatchString(tag) {
			return "", false
		}
		out, n := replaceAllSubmatchFunc(imgAttrRe, tag, func(a []string) (string, bool) {
			val := a[4]
			if !strings.EqualFold(a[2], "srcset") {
				m := r.mirrorMediaValue(val)
				return a[1] + a[3] + m + a[5], m != ""
			}
			entries := strings.Split(val, ",")
			changed := false
			for i, e := range entries {
				f := strings.Fields(e)
				if len(f) == 0 {
					continue
				}
				if m := r.mirrorMediaValue(f[0]); m != "" {
					f[0] = m
					changed = true
				}
				entries[i] = strings.Join(f, " ")
			}
			return a[1] + a[3] + strings.Join(entries, ", ") + a[5], changed
		})
		return out, n > 0
	})

	r.doc, _ = replaceAllSubmatchFunc(galleryKeyRe, r.doc, func(sub []string) (string, bool) {
		m := r.mirrorMediaValue(sub[2])
		return sub[1] + m + sub[3], m != ""
	})

	if clientpatch.Has(r.doc, clientpatch.ProductGallery) {
		return
	}
	script := clientpatch.Script(clientpatch.ProductGallery, r.cdn)
	if locs := bodyCloseRe.FindAllStringIndex(r.doc, -1); len(locs) > 0 {
		at := locs[len(locs)-1][0]
		r.doc = r.doc[:at] + script + r.doc[at:]
	} else {
		r.doc += script
	}
	r.logger.Debug("rewrite: product gallery patch injected")
}

// 14. Loader define() wrapper, placed right after the loader script.
func (r *run) defineWrapper() {
	if !strings.Contains(r.doc, "require.js") && !strings.Contains(r.doc, "requirejs") {
		return
	}
	if clientpatch.Has(r.doc, clientpatch.DefineWrapper) {
		return
	}
	loc := requireScriptRe.FindStringIndex(r.doc)
	if loc == nil {
		return
	}
	r.doc = r.doc[:loc[1]] + clientpatch.Script(clientpatch.DefineWrapper, r.cdn) + r.doc[loc[1]:]
	r.logger.Debug("rewrite: define wrapper injected")
}
