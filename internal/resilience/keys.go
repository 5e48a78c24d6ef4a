package resilience

import (
	"net/url"
	"strings"
)

// breaker keys include the leading path segments so one failing controller
// does not open the circuit for the whole host.
const breakerKeySegments = 2

// BreakerKey derives the circuit key for a URL: lowercased host plus up to
// two leading path segments.
func BreakerKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	key := strings.ToLower(u.Host)
	segs := pathSegments(u.EscapedPath())
	if len(segs) > breakerKeySegments {
		segs = segs[:breakerKeySegments]
	}
	if len(segs) > 0 {
		key += "/" + strings.Join(segs, "/")
	}
	return key
}

// RateKey derives the rate-window key for a URL and reports whether the URL
// is API-shaped, which selects the looser ceiling tier.
func RateKey(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL), false
	}
	host := strings.ToLower(u.Host)
	if isAPIPath(host, u.EscapedPath()) {
		return host + "|api", true
	}
	return host, false
}

func isAPIPath(host, path string) bool {
	if strings.HasPrefix(host, "api.") {
		return true
	}
	lower := strings.ToLower(path)
	for _, seg := range pathSegments(lower) {
		switch seg {
		case "api", "rest", "ws", "services":
			return true
		}
	}
	return strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".xml")
}

func pathSegments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
