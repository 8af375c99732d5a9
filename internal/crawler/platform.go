package crawler

import "strings"

// Platform identifies where a submission came from.
type Platform string

// Supported platforms.
const (
	PlatformDouyin       Platform = "douyin"
	PlatformToutiao      Platform = "toutiao"
	PlatformSelfAuthored Platform = "self-authored"
)

// DetectPlatform classifies a submission by URL substring. Anything that is
// not a recognized platform URL is treated as self-authored content.
func DetectPlatform(raw string) Platform {
	switch {
	case strings.Contains(raw, "douyin.com"):
		return PlatformDouyin
	case strings.Contains(raw, "toutiao.com"):
		return PlatformToutiao
	default:
		return PlatformSelfAuthored
	}
}

// ParsePlatform converts a filter value into a Platform.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformDouyin:
		return PlatformDouyin, true
	case PlatformToutiao:
		return PlatformToutiao, true
	case PlatformSelfAuthored:
		return PlatformSelfAuthored, true
	default:
		return "", false
	}
}

// Crawlable reports whether a browser crawler exists for p.
func (p Platform) Crawlable() bool {
	return p == PlatformDouyin || p == PlatformToutiao
}
