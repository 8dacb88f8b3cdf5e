package rewrite

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/cdnmirror/assetpath"
)

// CommonModules are loader modules that storefront pages request by bare
// name. A discovery run seeds them so the mirror holds them even when no
// page references them directly.
var CommonModules = []string{
	"mage/utils/main",
	"mage/utils/misc",
	"mage/utils/template",
	"mage/utils/arrays",
	"mage/utils/strings",
	"mage/utils/objects",
	"mage/utils/compare",
	"jquery/ui-modules/core",
	"jquery/ui-modules/datepicker",
	"jquery/ui-modules/dialog",
	"jquery/ui-modules/widget",
	"jquery/z-index",
	"Magento_Ui/js/lib/core/events",
	"Magento_Ui/js/lib/core/storage/local",
	"Magento_Ui/js/lib/key-codes",
}

var (
	pathsBlockRe  = regexp.MustCompile(`["']?paths["']?\s*:\s*\{`)
	quotedAssetRe = regexp.MustCompile(`(['"])(/(?:static|media)/[^'"]+)(['"])`)
)

// RewriteRequireConfig rewrites namespaced path values inside every
// "paths" block of a loader configuration file. It returns the new content
// and the number of values rewritten. Text outside the blocks is left as
// is.
func RewriteRequireConfig(content, cdnBase string) (string, int) {
	if cdnBase == "" {
		return content, 0
	}
	var b strings.Builder
	last, total := 0, 0
	for _, loc := range pathsBlockRe.FindAllStringIndex(content, -1) {
		open := loc[1] - 1
		if open < last {
			continue
		}
		end := matchBrace(content, open)
		if end < 0 {
			break
		}
		block, n := replaceAllSubmatchFunc(quotedAssetRe, content[open:end+1], func(sub []string) (string, bool) {
			if sub[1] != sub[3] {
				return "", false
			}
			m := assetpath.ToMirrorURL(sub[2], cdnBase)
			return sub[1] + m + sub[3], m != ""
		})
		b.WriteString(content[last:open])
		b.WriteString(block)
		last = end + 1
		total += n
	}
	if total == 0 {
		return content, 0
	}
	b.WriteString(content[last:])
	return b.String(), total
}

// matchBrace returns the index of the brace closing the one at open,
// ignoring braces inside string literals, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
