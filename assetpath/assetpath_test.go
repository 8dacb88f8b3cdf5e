package assetpath

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/cdnmirror/horosafe"
)

const testCDN = "https://cdn.example.com/gh/user/repo@main/"

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		path string
	}{
		{"/static/frontend/a.css", Static, "/static/frontend/a.css"},
		{"static/frontend/a.css", Static, "/static/frontend/a.css"},
		{"/media/catalog/a.jpg", Media, "/media/catalog/a.jpg"},
		{"https://shop.example.com/static/a.js?v=3", Static, "/static/a.js"},
		{"http://shop.example.com/media/a.png#top", Media, "/media/a.png"},
		{"//shop.example.com/media/a.png", Media, "/media/a.png"},
		{"/staticfiles/a.css", Irrelevant, "/staticfiles/a.css"},
		{"/media", Irrelevant, "/media"},
		{"/catalog/product/view/id/1", Irrelevant, "/catalog/product/view/id/1"},
		{"", Irrelevant, ""},
	}
	for _, tt := range tests {
		got := Classify(tt.in)
		if got.Kind != tt.kind {
			t.Errorf("Classify(%q).Kind: got %v, want %v", tt.in, got.Kind, tt.kind)
		}
		if got.Path != tt.path {
			t.Errorf("Classify(%q).Path: got %q, want %q", tt.in, got.Path, tt.path)
		}
	}
}

func TestClassifyFrom_External(t *testing.T) {
	site := "https://shop.example.com/"
	if k := ClassifyFrom("https://other.example.org/static/a.css", site).Kind; k != External {
		t.Errorf("other host: got %v, want external", k)
	}
	if k := ClassifyFrom("https://SHOP.example.com/static/a.css", site).Kind; k != Static {
		t.Errorf("same host: got %v, want static", k)
	}
	if k := ClassifyFrom("/media/a.png", site).Kind; k != Media {
		t.Errorf("relative: got %v, want media", k)
	}
}

func TestNormalize_KeepsQuery(t *testing.T) {
	if got := Normalize("https://shop.example.com/static/a.js?v=3"); got != "/static/a.js?v=3" {
		t.Errorf("got %q", got)
	}
	if got := Normalize("media/a.png"); got != "/media/a.png" {
		t.Errorf("got %q", got)
	}
}

func TestToMirrorURL(t *testing.T) {
	tests := []struct {
		path, base, want string
	}{
		{"/static/frontend/theme/css/styles.css", testCDN, testCDN + "frontend/theme/css/styles.css"},
		{"/static/frontend/a.css", strings.TrimSuffix(testCDN, "/"), testCDN + "frontend/a.css"},
		{"/media/catalog/a.jpg", testCDN + "//", testCDN + "catalog/a.jpg"},
		{"/static//double.css", testCDN, testCDN + "double.css"},
		{"/static/a.js?v=2", testCDN, testCDN + "a.js?v=2"},
		{"/static/", testCDN, ""},
		{"/other/a.css", testCDN, ""},
		{"/static/a.css", "", ""},
	}
	for _, tt := range tests {
		if got := ToMirrorURL(tt.path, tt.base); got != tt.want {
			t.Errorf("ToMirrorURL(%q, %q): got %q, want %q", tt.path, tt.base, got, tt.want)
		}
	}
}

func TestToMirrorURL_InjectivePerNamespace(t *testing.T) {
	// WHAT: Distinct paths in one namespace never collide on the mirror.
	// WHY: A collision would serve the wrong file from the CDN.
	paths := []string{
		"/static/a.css", "/static/b.css", "/static/dir/a.css", "/static/dir/a.css.map",
		"/media/a.css", "/media/catalog/product/a/b/ab.jpg", "/media/catalog/product/a/b/ab.jpeg",
	}
	seen := map[string]string{}
	for _, p := range paths {
		m := ToMirrorURL(p, testCDN)
		ns := Classify(p).Kind
		key := ns.String() + "|" + m
		if prev, ok := seen[key]; ok {
			t.Errorf("collision: %q and %q both map to %q", prev, p, m)
		}
		seen[key] = p
		rest := strings.TrimPrefix(m, "https://")
		if strings.Contains(rest, "//") {
			t.Errorf("double slash in %q", m)
		}
	}
}

func TestClassifySurvivesAbsolutize(t *testing.T) {
	paths := []string{"/static/a.css", "/media/catalog/x.png", "/static/frontend/Magento/luma/en_US/mage/utils/main.js"}
	hosts := []string{"https://shop.example.com/", "http://localhost:8080", "https://a.b.c"}
	for _, p := range paths {
		for _, h := range hosts {
			abs := ToAbsoluteURL(p, h)
			if got, want := Classify(abs), Classify(p); got != want {
				t.Errorf("Classify(%q) = %+v, Classify(%q) = %+v", abs, got, p, want)
			}
		}
	}
}

func TestIsAssetLeaf(t *testing.T) {
	tests := map[string]bool{
		"/static/a.js":         true,
		"/media/x/y.jpeg":      true,
		"/static/fonts/a.woff": false,
		"/other/a.js":          false,
		"mage/utils/main":      false,
	}
	for in, want := range tests {
		if got := IsAssetLeaf(in); got != want {
			t.Errorf("IsAssetLeaf(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestLocalPath(t *testing.T) {
	roots := Roots{Static: "/var/www/pub/static", Media: "/var/www/pub/media"}

	got, err := LocalPath("/static/frontend/a.css", roots)
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if want := filepath.Join("/var/www/pub/static", "frontend", "a.css"); got != want {
		t.Errorf("static: got %q, want %q", got, want)
	}

	got, err = LocalPath("https://shop.example.com/media/catalog/a%20b.jpg", roots)
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	if want := filepath.Join("/var/www/pub/media", "catalog", "a b.jpg"); got != want {
		t.Errorf("media: got %q, want %q", got, want)
	}

	if _, err := LocalPath("/media/../etc/passwd", roots); !errors.Is(err, horosafe.ErrPathTraversal) {
		t.Errorf("traversal: got %v, want ErrPathTraversal", err)
	}
	if _, err := LocalPath("/other/a.css", roots); !errors.Is(err, ErrNotAsset) {
		t.Errorf("non-asset: got %v, want ErrNotAsset", err)
	}
	if _, err := LocalPath("/media/a.png", Roots{Static: "/s"}); !errors.Is(err, ErrNoRoot) {
		t.Errorf("no root: got %v, want ErrNoRoot", err)
	}
}

func TestSet(t *testing.T) {
	s := NewSet()
	s.Add("/static/b.css")
	s.Add("https://shop.example.com/static/b.css?v=1")
	s.Add("/media/a.png")
	if s.Add("/catalog/x") {
		t.Error("non-asset accepted")
	}
	want := []string{"/media/a.png", "/static/b.css"}
	if got := s.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Sorted: got %v, want %v", got, want)
	}
	if !s.Contains("/static/b.css") {
		t.Error("Contains: missing /static/b.css")
	}
}

func TestBuildCDNBaseURL(t *testing.T) {
	if got := BuildCDNBaseURL("acme", "assets", ""); got != "https://cdn.jsdelivr.net/gh/acme/assets@main/" {
		t.Errorf("default branch: got %q", got)
	}
	if got := BuildCDNBaseURL("acme", "assets", "prod"); got != "https://cdn.jsdelivr.net/gh/acme/assets@prod/" {
		t.Errorf("branch: got %q", got)
	}
	if got := BuildCDNBaseURL("", "assets", "main"); got != "" {
		t.Errorf("missing user: got %q", got)
	}
}

func TestParseCustomURLs(t *testing.T) {
	in := "/static/a.js\r\n\n https://shop.example.com/media/b.png https://shop.example.com/static/c.css\n/static/a.js"
	want := []string{
		"/static/a.js",
		"/media/b.png",
		"https://shop.example.com/media/b.png",
		"/static/c.css",
		"https://shop.example.com/static/c.css",
	}
	if got := ParseCustomURLs(in); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v\nwant %v", got, want)
	}
	if got := ParseCustomURLs(""); len(got) != 0 {
		t.Errorf("empty: got %v", got)
	}
}
