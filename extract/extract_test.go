package extract

import (
	"reflect"
	"regexp"
	"strings"
	"testing"
)

const site = "https://shop.example.com/"

var testHTML = `<!DOCTYPE html>
<html><head>
<link rel="stylesheet" href="/static/frontend/Magento/luma/en_US/css/styles-m.css?v=12">
<link rel="preload" as="font" href="/static/frontend/Magento/luma/en_US/fonts/opensans.woff2" crossorigin>
<link rel="stylesheet" href="https://cdn.other.net/static/lib.css">
<script src="https://shop.example.com/static/frontend/Magento/luma/en_US/requirejs/require.js"></script>
<style>@import url("/static/frontend/x/print.css"); .hero{background:url(/media/wysiwyg/hero.jpg)} .i{background:url(data:image/png;base64,AAAA)}</style>
</head><body>
<div style="background-image: url('/media/banner/b.png')"></div>
<img src="/media/catalog/product/a/b/ab.jpg" srcset="/media/catalog/a.jpg 1x, /media/catalog/b.jpg 2x">
<img src="data:image/png;base64,AAAA">
<picture><source srcset="/media/pic/small.webp 480w, /media/pic/large.webp 1024w"></picture>
<video><source src="/media/video/intro.mp4" type="video/mp4"></video>
<svg><use xlink:href="/static/frontend/icons.svg#cart"></use></svg>
<div data-bg="/media/wysiwyg/tile.gif"></div>
<script type="text/x-magento-init">{"*": {"Magento_Ui/js/core/app": {"logo": "/static/frontend/x/logo.svg", "esc": "\/static\/frontend\/x\/esc.js"}}}</script>
<script>require(['text!/static/frontend/x/template.html']);</script>
<script src="/static/_cache/merged/abc123.min.js"></script>
<div data-gallery-role="gallery-placeholder" data-mage-init='{"mage/gallery/gallery":{"data":[{"img":"https://shop.example.com/media/catalog/product/cache/1/image/g1.jpg","thumb":"/media/catalog/product/cache/1/thumb/g1.jpg","full":"/media/catalog/product/g1.jpg"}]}}'></div>
<a href="/catalog/product/view/id/1">product</a>
</body></html>`

func toSet(paths []string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return m
}

func TestExtract_DefaultRules(t *testing.T) {
	got := toSet(Extract(testHTML, site))

	want := []string{
		"/static/frontend/Magento/luma/en_US/css/styles-m.css",
		"/static/frontend/Magento/luma/en_US/fonts/opensans.woff2",
		"/static/frontend/Magento/luma/en_US/requirejs/require.js",
		"/static/frontend/x/print.css",
		"/media/wysiwyg/hero.jpg",
		"/media/banner/b.png",
		"/media/catalog/product/a/b/ab.jpg",
		"/media/catalog/a.jpg",
		"/media/catalog/b.jpg",
		"/media/pic/small.webp",
		"/media/pic/large.webp",
		"/media/video/intro.mp4",
		"/static/frontend/icons.svg",
		"/media/wysiwyg/tile.gif",
		"/static/frontend/x/logo.svg",
		"/static/frontend/x/esc.js",
		"/static/frontend/x/template.html",
		"/static/_cache/merged/abc123.min.js",
		"/media/catalog/product/cache/1/image/g1.jpg",
		"/media/catalog/product/cache/1/thumb/g1.jpg",
		"/media/catalog/product/g1.jpg",
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing %q", w)
		}
	}

	for p := range got {
		if !strings.HasPrefix(p, "/static/") && !strings.HasPrefix(p, "/media/") {
			t.Errorf("non-asset emitted: %q", p)
		}
		if strings.Contains(p, "data:") {
			t.Errorf("data URI emitted: %q", p)
		}
		if strings.ContainsAny(p, "?#") {
			t.Errorf("query or fragment kept: %q", p)
		}
	}
	if got["/static/lib.css"] {
		t.Error("asset from another host should be dropped")
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	if got := Extract("", site); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	if got := Extract("<html><body>plain text</body></html>", site); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestExtract_CustomRules(t *testing.T) {
	// WHAT: Callers can replace the rule table.
	// WHY: Themes with non-standard asset attributes need their own rules.
	rule := PatternRule{
		RuleName: "data-lazy",
		Pattern:  regexp.MustCompile(`data-lazy="([^"]+)"`),
		Group:    1,
	}
	e := New(WithRules(rule))
	got := e.Extract(`<img data-lazy="/media/lazy/x.png"><link href="/static/a.css">`, site)
	if want := []string{"/media/lazy/x.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if n := len(e.Rules()); n != 1 {
		t.Errorf("rules: got %d, want 1", n)
	}
}

func TestSrcsetURLs(t *testing.T) {
	got := SrcsetURLs(" /media/a.jpg 1x,/media/b.jpg   2x , /media/c.jpg")
	want := []string{"/media/a.jpg", "/media/b.jpg", "/media/c.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeGallery(t *testing.T) {
	items, err := DecodeGallery(`{"mage/gallery/gallery":{"data":[{"img":"/media/a.jpg","thumb":"","full":"/media/a_full.jpg"}]}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items: got %d, want 1", len(items))
	}
	if got := items[0].URLs(); !reflect.DeepEqual(got, []string{"/media/a.jpg", "/media/a_full.jpg"}) {
		t.Errorf("URLs: got %v", got)
	}

	if _, err := DecodeGallery(`{"mage/gallery/gallery":`); err == nil {
		t.Error("truncated JSON should fail")
	}
}
