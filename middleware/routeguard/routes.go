package routeguard

import (
	"path"
	"strings"
)

// Classification of a request path.
type Classification string

const (
	// Bypass covers assets and the API namespace. They skip the guard entirely.
	Bypass Classification = "bypass"
	// Public paths always pass, annotated.
	Public Classification = "public"
	// Protected paths require the session cookie.
	Protected Classification = "protected"
)

// UnlistedPolicy decides the fate of page paths found in neither table.
type UnlistedPolicy string

const (
	// UnlistedDeny treats unlisted paths as protected.
	UnlistedDeny UnlistedPolicy = "deny"
	// UnlistedAllow treats unlisted paths as public.
	UnlistedAllow UnlistedPolicy = "allow"
)

// ParseUnlistedPolicy maps config values, defaulting to deny.
func ParseUnlistedPolicy(s string) UnlistedPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(UnlistedAllow)) {
		return UnlistedAllow
	}
	return UnlistedDeny
}

// RouteTable is the static prefix table the guard classifies against.
type RouteTable struct {
	Public     []string
	Protected  []string
	Bypass     []string
	Chromeless []string
	Unlisted   UnlistedPolicy
}

// DefaultRouteTable mirrors the application's page map.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		Public: []string{
			"/", "/auth", "/about", "/services", "/pricing",
			"/contact", "/blog", "/privacy", "/terms", "/unauthorized",
		},
		Protected: []string{
			"/dashboard", "/profile", "/settings", "/orders", "/admin",
		},
		Bypass: []string{
			"/api", "/_next", "/static", "/assets", "/favicon.ico", "/robots.txt", "/sitemap.xml",
		},
		Chromeless: []string{"/dashboard", "/admin"},
		Unlisted:   UnlistedDeny,
	}
}

// Classify maps a path to its classification. Protected wins over public
// and over the static asset rule, so a dotted path under a protected
// section still needs the cookie.
func (t RouteTable) Classify(p string) Classification {
	p = cleanPath(p)

	if matchAny(p, t.Bypass) {
		return Bypass
	}
	if matchAny(p, t.Protected) {
		return Protected
	}
	if isStaticAsset(p) {
		return Bypass
	}
	if matchAny(p, t.Public) {
		return Public
	}
	if t.Unlisted == UnlistedAllow {
		return Public
	}
	return Protected
}

// IsChromeless reports sections that render without site chrome.
func (t RouteTable) IsChromeless(p string) bool {
	return matchAny(cleanPath(p), t.Chromeless)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// matchAny does segment aware prefix matching; "/" only matches itself.
func matchAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if matchPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func matchPrefix(p, prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return false
	}
	prefix = cleanPath(prefix)
	if prefix == "/" {
		return p == "/"
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

// staticExtensions are the asset types served outside the page map.
var staticExtensions = map[string]bool{
	".css":   true,
	".js":    true,
	".map":   true,
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
	".svg":   true,
	".webp":  true,
	".ico":   true,
	".woff":  true,
	".woff2": true,
	".txt":   true,
	".xml":   true,
}

func isStaticAsset(p string) bool {
	return staticExtensions[strings.ToLower(path.Ext(p))]
}
