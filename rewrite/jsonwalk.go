package rewrite

import (
	"encoding/json"
	"iter"
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

// DecodeJSON decodes an embedded JSON blob into generic values.
func DecodeJSON(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Walk yields every string leaf of v with its JSON-pointer path. Object
// keys are visited in sorted order so the sequence is stable.
func Walk(v any) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		walk("", v, yield)
	}
}

// AssetLeaves is Walk restricted to leaves under a namespace carrying a
// known asset extension.
func AssetLeaves(v any) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for p, s := range Walk(v) {
			if assetpath.IsAssetLeaf(s) && !yield(p, s) {
				return
			}
		}
	}
}

func walk(path string, v any, yield func(string, string) bool) bool {
	switch t := v.(type) {
	case string:
		return yield(path, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !walk(path+"/"+pointerEscape(k), t[k], yield) {
				return false
			}
		}
	case []any:
		for i, e := range t {
			if !walk(path+"/"+strconv.Itoa(i), e, yield) {
				return false
			}
		}
	}
	return true
}

var pointerReplacer = strings.NewReplacer("~", "~0", "/", "~1")

func pointerEscape(k string) string { return pointerReplacer.Replace(k) }
