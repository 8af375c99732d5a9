package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MediaPrefix is the managed-storage folder for collected media.
const MediaPrefix = "creative_collection"

// FileRoute is the HTTP path serving managed files.
const FileRoute = "/getFile"

const maxStemRunes = 50

// SafeStem builds a filesystem-safe, collision-resistant file stem from a
// title. Titles without usable characters fall back to video_<unix>.
func SafeStem(title string, now time.Time, digest string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(title) {
		if n >= maxStemRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		default:
			continue
		}
		n++
	}
	stem := strings.Trim(b.String(), "_")
	if stem == "" {
		stem = fmt.Sprintf("video_%d", now.Unix())
	}
	if len(digest) > 8 {
		digest = digest[:8]
	}
	if digest != "" {
		stem = stem + "_" + digest
	}
	return stem
}

// ManagedPath joins elements into a forward-slash relative path.
func ManagedPath(elem ...string) string {
	return path.Join(elem...)
}

// ManagedFileURL exposes a managed file as a query-parameterized retrieval path.
func ManagedFileURL(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	return FileRoute + "?filename=" + url.QueryEscape(rel)
}

// FilenameFromURL extracts the managed relative path encoded in a cover URL.
func FilenameFromURL(raw string) (string, bool) {
	if !strings.Contains(raw, FileRoute) {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	name := u.Query().Get("filename")
	if name == "" {
		return "", false
	}
	return strings.ReplaceAll(name, "\\", "/"), true
}

// SiblingPath swaps the extension of rel for ext (".mp4").
func SiblingPath(rel, ext string) string {
	return strings.TrimSuffix(rel, path.Ext(rel)) + ext
}

// NormalizeMediaURL upgrades protocol-relative and scheme-less URLs to https.
func NormalizeMediaURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case !strings.HasPrefix(raw, "http"):
		return "https://" + raw
	}
	return raw
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// DedupeStrings trims entries and drops empties and repeats, keeping the
// order of first appearance.
func DedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
