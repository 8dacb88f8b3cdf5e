// Package assetpath classifies URL strings against the two mirrored
// namespaces ("/static/" and "/media/") and converts asset paths between
// their origin, mirror, and on-disk forms.
//
// Everything here is pure: no I/O, no shared state.
package assetpath

import (
	"net/url"
	"strings"

	"github.com/hazyhaar/cdnmirror/horosafe"
)

// Namespace prefixes. Their lengths (8 and 7) are the strip lengths used
// when mapping an asset path to a mirror URL or a local file.
const (
	StaticPrefix = "/static/"
	MediaPrefix  = "/media/"
)

// Kind is the classification of a URL string.
type Kind int

const (
	Irrelevant Kind = iota
	Static
	Media
	External
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Media:
		return "media"
	case External:
		return "external"
	default:
		return "none"
	}
}

// Prefix returns the namespace prefix for Static and Media, "" otherwise.
func (k Kind) Prefix() string {
	switch k {
	case Static:
		return StaticPrefix
	case Media:
		return MediaPrefix
	}
	return ""
}

// Classification is the result of Classify.
type Classification struct {
	Kind Kind
	// Path is the root-relative path without query or fragment.
	Path string
}

// IsAsset reports whether the classification is Static or Media.
func (c Classification) IsAsset() bool {
	return c.Kind == Static || c.Kind == Media
}

// Classify returns the namespace of raw and its normalized path.
// Absolute URLs keep only their path component. Query strings and
// fragments are dropped from Path.
func Classify(raw string) Classification {
	p := Normalize(raw)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return Classification{Kind: kindOf(p), Path: p}
}

// ClassifyFrom is Classify with a site context: an absolute URL whose host
// differs from siteBase's host is External.
func ClassifyFrom(raw, siteBase string) Classification {
	raw = strings.TrimSpace(raw)
	if isAbsolute(raw) && siteBase != "" {
		u, err := url.Parse(raw)
		b, berr := url.Parse(siteBase)
		if err != nil || berr != nil {
			return Classification{Kind: Irrelevant}
		}
		if !strings.EqualFold(u.Hostname(), b.Hostname()) {
			return Classification{Kind: External, Path: u.Path}
		}
	}
	return Classify(raw)
}

// Normalize strips scheme and host from absolute URLs and guarantees a
// single leading slash. The query string of relative inputs is kept.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if isAbsolute(raw) {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		raw = u.EscapedPath()
		if u.RawQuery != "" {
			raw += "?" + u.RawQuery
		}
	}
	return "/" + strings.TrimLeft(raw, "/")
}

// HasPrefix reports whether s starts with one of the namespace prefixes.
func HasPrefix(s string) bool {
	return kindOf(s) != Irrelevant
}

func kindOf(p string) Kind {
	switch {
	case strings.HasPrefix(p, StaticPrefix):
		return Static
	case strings.HasPrefix(p, MediaPrefix):
		return Media
	}
	return Irrelevant
}

func isAbsolute(raw string) bool {
	l := strings.ToLower(raw)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") ||
		strings.HasPrefix(raw, "//")
}

// ToMirrorURL maps an asset path (query allowed) onto cdnBase by dropping
// the namespace prefix and joining with exactly one slash. It returns ""
// when p is not under a namespace, the remainder is empty, or cdnBase is "".
func ToMirrorURL(p, cdnBase string) string {
	if cdnBase == "" {
		return ""
	}
	k := kindOf(p)
	if k == Irrelevant {
		return ""
	}
	suffix := strings.TrimLeft(p[len(k.Prefix()):], "/")
	if suffix == "" {
		return ""
	}
	return strings.TrimRight(cdnBase, "/") + "/" + suffix
}

// ToAbsoluteURL joins a root-relative path onto a site base such as
// "https://shop.example.com/".
func ToAbsoluteURL(p, siteBase string) string {
	return strings.TrimRight(siteBase, "/") + "/" + strings.TrimLeft(p, "/")
}

// assetExts are the extensions recognised inside embedded JSON.
var assetExts = []string{".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg"}

// HasAssetExtension reports whether s contains one of the embedded-JSON
// asset extensions.
func HasAssetExtension(s string) bool {
	for _, ext := range assetExts {
		if strings.Contains(s, ext) {
			return true
		}
	}
	return false
}

// IsAssetLeaf is the predicate applied to JSON string leaves: namespace
// prefix plus a known asset extension.
func IsAssetLeaf(s string) bool {
	return HasPrefix(s) && HasAssetExtension(s)
}

// Roots locates the two namespace directories on disk.
type Roots struct {
	Static string `yaml:"static"`
	Media  string `yaml:"media"`
}

// LocalPath resolves an asset path to its file under the matching root.
func LocalPath(p string, roots Roots) (string, error) {
	c := Classify(p)
	var base string
	switch c.Kind {
	case Static:
		base = roots.Static
	case Media:
		base = roots.Media
	default:
		return "", ErrNotAsset
	}
	if base == "" {
		return "", ErrNoRoot
	}
	rel, err := url.PathUnescape(c.Path[len(c.Kind.Prefix()):])
	if err != nil {
		return "", err
	}
	return horosafe.SafePath(base, rel)
}
