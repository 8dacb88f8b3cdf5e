package extract

import "regexp"

var (
	linkCSSRe      = regexp.MustCompile(`(?i)<link[^>]*\shref=['"]([^'"]+\.css(?:\?[^'"]*)?)['"]`)
	scriptJSRe     = regexp.MustCompile(`(?i)<script[^>]*\ssrc=['"]([^'"]+\.js(?:\?[^'"]*)?)['"]`)
	imgSrcRe       = regexp.MustCompile(`(?i)<img[^>]*\ssrc=['"]([^'"]+\.(?:png|jpe?g|gif|svg|webp)(?:\?[^'"]*)?)['"]`)
	styleBgRe      = regexp.MustCompile(`(?i)style=['"][^'"]*background(?:-image)?:\s*url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)
	cssURLRe       = regexp.MustCompile(`(?i)url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)
	importRe       = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*)?['"]([^'"]+)['"]`)
	sourceSrcRe    = regexp.MustCompile(`(?i)<source[^>]*\ssrc=['"]([^'"]+)['"]`)
	objectEmbedRe  = regexp.MustCompile(`(?i)<(?:object|embed)[^>]*\s(?:data|src)=['"]([^'"]+)['"]`)
	dataAttrRe     = regexp.MustCompile(`(?i)\sdata-[\w-]+=['"]([^'"]+\.(?:js|css|png|jpe?g|gif|svg|webp)(?:\?[^'"]*)?)['"]`)
	svgRefRe       = regexp.MustCompile(`(?i)\s(?:xlink:href|href|src)=['"]([^'"]+\.svg(?:[?#][^'"]*)?)['"]`)
	preloadRelRe   = regexp.MustCompile(`(?i)<link[^>]*\srel=['"](?:preload|prefetch|modulepreload)['"][^>]*\shref=['"]([^'"]+)['"]`)
	preloadHrefRe  = regexp.MustCompile(`(?i)<link[^>]*\shref=['"]([^'"]+)['"][^>]*\srel=['"](?:preload|prefetch|modulepreload)['"]`)
	imgSrcsetRe    = regexp.MustCompile(`(?i)<img[^>]*\ssrcset=['"]([^'"]+)['"]`)
	sourceSrcsetRe = regexp.MustCompile(`(?i)<source[^>]*\ssrcset=['"]([^'"]+)['"]`)
	imageSrcsetRe  = regexp.MustCompile(`(?i)<link[^>]*\simagesrcset=['"]([^'"]+)['"]`)
	requireModRe   = regexp.MustCompile(`(?i)\sdata-requiremodule=['"]([^'"]+)['"]`)
	fontRe         = regexp.MustCompile(`(?i)([^'"()\s,=]+\.(?:woff2?|ttf|eot|otf))(?:[?#][^'"()\s]*)?`)
	mediaFileRe    = regexp.MustCompile(`(?i)([^'"()\s,=]+\.(?:mp4|webm|ogg|mp3|wav))\b`)
	cacheDirRe     = regexp.MustCompile(`(?i)/static/_cache/(?:merged|minified)/[^"')+\s]+`)
	textPluginRe   = regexp.MustCompile(`text!(/static/[^!'"\s]+)`)
	quotedStaticRe = regexp.MustCompile(`"(/static/[^"]+)"`)
)

// DefaultRules returns the built-in rule table. Order matters only for the
// debug log; the output is deduplicated by the caller.
func DefaultRules() []Rule {
	return []Rule{
		PatternRule{RuleName: "link-css", Pattern: linkCSSRe, Group: 1},
		PatternRule{RuleName: "script-js", Pattern: scriptJSRe, Group: 1},
		PatternRule{RuleName: "img-src", Pattern: imgSrcRe, Group: 1},
		PatternRule{RuleName: "style-background", Pattern: styleBgRe, Group: 1},
		PatternRule{RuleName: "css-url", Pattern: cssURLRe, Group: 1},
		PatternRule{RuleName: "css-import", Pattern: importRe, Group: 1},
		PatternRule{RuleName: "source-src", Pattern: sourceSrcRe, Group: 1},
		PatternRule{RuleName: "object-embed", Pattern: objectEmbedRe, Group: 1},
		PatternRule{RuleName: "data-attr", Pattern: dataAttrRe, Group: 1},
		PatternRule{RuleName: "svg-ref", Pattern: svgRefRe, Group: 1},
		PatternRule{RuleName: "preload", Pattern: preloadRelRe, Group: 1},
		PatternRule{RuleName: "preload-href-first", Pattern: preloadHrefRe, Group: 1},
		PatternRule{RuleName: "img-srcset", Pattern: imgSrcsetRe, Group: 1, Srcset: true},
		PatternRule{RuleName: "source-srcset", Pattern: sourceSrcsetRe, Group: 1, Srcset: true},
		PatternRule{RuleName: "link-imagesrcset", Pattern: imageSrcsetRe, Group: 1, Srcset: true},
		PatternRule{RuleName: "requiremodule", Pattern: requireModRe, Group: 1},
		PatternRule{RuleName: "font", Pattern: fontRe, Group: 1},
		PatternRule{RuleName: "media-file", Pattern: mediaFileRe, Group: 1},
		PatternRule{RuleName: "cache-dir", Pattern: cacheDirRe, Group: 0},
		PatternRule{RuleName: "text-plugin", Pattern: textPluginRe, Group: 1},
		PatternRule{RuleName: "quoted-static", Pattern: quotedStaticRe, Group: 1},
		FuncRule{RuleName: "json-block", Fn: jsonBlockCandidates},
		FuncRule{RuleName: "gallery-json", Fn: galleryCandidates},
	}
}
