package rewrite

import (
	"reflect"
	"strings"
	"testing"
)

func TestWalk_SortedPointers(t *testing.T) {
	v, err := DecodeJSON(`{"b":{"img":"/media/a.jpg","n":3},"a":["/static/x.js",{"k/1":"v"}],"c~":"x"}`)
	if err != nil {
		t.Fatal(err)
	}
	var paths, vals []string
	for p, s := range Walk(v) {
		paths = append(paths, p)
		vals = append(vals, s)
	}
	wantPaths := []string{"/a/0", "/a/1/k~11", "/b/img", "/c~0"}
	if !reflect.DeepEqual(paths, wantPaths) {
		t.Errorf("paths: got %v, want %v", paths, wantPaths)
	}
	wantVals := []string{"/static/x.js", "v", "/media/a.jpg", "x"}
	if !reflect.DeepEqual(vals, wantVals) {
		t.Errorf("values: got %v, want %v", vals, wantVals)
	}
}

func TestWalk_StopsEarly(t *testing.T) {
	v, _ := DecodeJSON(`["a","b","c"]`)
	n := 0
	for range Walk(v) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("got %d", n)
	}
}

func TestAssetLeaves(t *testing.T) {
	v, _ := DecodeJSON(`{"a":"/media/a.jpg","b":"/media/readme.txt","c":"https://x/static/a.js","d":{"e":"/static/b.css?v=1"}}`)
	var got []string
	for _, s := range AssetLeaves(v) {
		got = append(got, s)
	}
	want := []string{"/media/a.jpg", "/static/b.css?v=1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	if _, err := DecodeJSON(`{"a":`); err == nil {
		t.Error("expected error")
	}
}

func TestMemo(t *testing.T) {
	m := NewMemo()
	if m.Seen("/static/a.js") {
		t.Error("fresh memo")
	}
	m.MarkRewritten("/static/a.js")
	m.MarkSkipped("/static/requirejs/require.js")
	if m.State("/static/a.js") != Rewritten || m.State("/static/requirejs/require.js") != Skipped {
		t.Error("states not recorded")
	}
	if m.State("/static/b.js") != Unseen || m.Len() != 2 {
		t.Errorf("len %d", m.Len())
	}
}

func TestRewriteRequireConfig(t *testing.T) {
	content := `var config = {
    map: {"*": {"x": "/static/keep.js"}},
    paths: {
        "jquery": "/static/frontend/t/en_US/jquery.js",
        'slick': '/media/js/slick.js',
        "note": "}{"
    }
};
require.config({"paths": {"a": "/static/a"}});`

	got, n := RewriteRequireConfig(content, testCDN)
	if n != 3 {
		t.Fatalf("count: got %d, want 3\n%s", n, got)
	}
	for _, want := range []string{
		`"jquery": "` + testCDN + `frontend/t/en_US/jquery.js"`,
		`'slick': '` + testCDN + `js/slick.js'`,
		`"a": "` + testCDN + `a"`,
		`"x": "/static/keep.js"`,
		`"note": "}{"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s", want)
		}
	}
}

func TestRewriteRequireConfig_NoBlocks(t *testing.T) {
	in := `require.config({map: {"*": {}}});`
	if got, n := RewriteRequireConfig(in, testCDN); got != in || n != 0 {
		t.Errorf("got %q, %d", got, n)
	}
	if got, n := RewriteRequireConfig(`paths: {"a": "/static/a.js"}`, ""); n != 0 || got != `paths: {"a": "/static/a.js"}` {
		t.Errorf("empty base: got %q", got)
	}
}
