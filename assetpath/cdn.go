package assetpath

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultBranch is used when no branch is configured.
const DefaultBranch = "main"

// BuildCDNBaseURL returns the jsDelivr GitHub base for a repository, or ""
// when user or repo is missing.
func BuildCDNBaseURL(user, repo, branch string) string {
	user, repo, branch = strings.TrimSpace(user), strings.TrimSpace(repo), strings.TrimSpace(branch)
	if user == "" || repo == "" {
		return ""
	}
	if branch == "" {
		branch = DefaultBranch
	}
	return fmt.Sprintf("https://cdn.jsdelivr.net/gh/%s/%s@%s/", user, repo, branch)
}

var schemeRe = regexp.MustCompile(`https?://`)

// ParseCustomURLs splits an operator-supplied list. Entries are separated by
// newlines, and absolute URLs pasted back to back are split at each scheme.
// Every absolute entry contributes its path followed by the full URL.
// Order of first occurrence is kept.
func ParseCustomURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		for _, entry := range splitAtSchemes(line) {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if !isAbsolute(entry) {
				add(entry)
				continue
			}
			u, err := url.Parse(entry)
			if err != nil || u.Path == "" {
				continue
			}
			add(u.Path)
			add(entry)
		}
	}
	return out
}

func splitAtSchemes(line string) []string {
	idx := schemeRe.FindAllStringIndex(line, -1)
	if len(idx) <= 1 {
		return []string{line}
	}
	parts := make([]string, 0, len(idx)+1)
	if idx[0][0] > 0 {
		parts = append(parts, line[:idx[0][0]])
	}
	for i, loc := range idx {
		end := len(line)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		parts = append(parts, line[loc[0]:end])
	}
	return parts
}
