package middleware

import (
	"path"
	"sort"
	"strings"
)

// RouteClass is the derived category of a route. It drives which security
// headers, CSP and CORS treatment a response receives. Classification is a
// pure function of the URL path; nothing is persisted.
type RouteClass string

const (
	// ClassAdmin covers the dashboard and moderation surfaces.
	ClassAdmin RouteClass = "admin"
	// ClassAPI covers JSON endpoints consumed by the builder frontend.
	ClassAPI RouteClass = "api"
	// ClassAuth covers login, logout and signup flows.
	ClassAuth RouteClass = "auth"
	// ClassStatic covers fingerprinted assets.
	ClassStatic RouteClass = "static"
	// ClassPublic covers everything else: marketing pages, club pages, author profiles.
	ClassPublic RouteClass = "public"
)

// defaultPrefixClasses are the built-in prefix rules, longest prefix wins.
var defaultPrefixClasses = map[string]RouteClass{
	"/admin":  ClassAdmin,
	"/api":    ClassAPI,
	"/auth":   ClassAuth,
	"/login":  ClassAuth,
	"/logout": ClassAuth,
	"/signup": ClassAuth,
	"/static": ClassStatic,
	"/assets": ClassStatic,
	"/_app":   ClassStatic,
}

// staticExtensions classify bare asset requests that live outside the asset prefixes.
var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".webp": true, ".avif": true,
	".woff": true, ".woff2": true, ".ttf": true,
}

// Classifier maps request paths to route classes using prefix rules.
//
// The zero value is not usable; construct with NewClassifier. Custom rules
// from the policy file extend (and may override) the defaults.
type Classifier struct {
	// prefixes sorted longest-first so the most specific rule wins
	prefixes []string
	classes  map[string]RouteClass
}

// NewClassifier builds a classifier from the default rules plus optional
// overrides (path prefix -> class name). Unknown class names in overrides
// are ignored.
func NewClassifier(overrides map[string]string) *Classifier {
	classes := make(map[string]RouteClass, len(defaultPrefixClasses)+len(overrides))
	for prefix, class := range defaultPrefixClasses {
		classes[prefix] = class
	}

	for prefix, name := range overrides {
		if class, ok := parseClass(name); ok && strings.HasPrefix(prefix, "/") {
			classes[prefix] = class
		}
	}

	prefixes := make([]string, 0, len(classes))
	for prefix := range classes {
		prefixes = append(prefixes, prefix)
	}

	// Longest prefix first, then lexicographic for determinism
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}

		return prefixes[i] < prefixes[j]
	})

	return &Classifier{prefixes: prefixes, classes: classes}
}

// Classify returns the route class for a URL path.
func (c *Classifier) Classify(requestPath string) RouteClass {
	if requestPath == "" {
		return ClassPublic
	}

	for _, prefix := range c.prefixes {
		if matchesPrefix(requestPath, prefix) {
			return c.classes[prefix]
		}
	}

	if staticExtensions[strings.ToLower(path.Ext(requestPath))] {
		return ClassStatic
	}

	return ClassPublic
}

// IsLogout reports whether the path is the logout flow, which gets
// additional cache-busting headers.
func IsLogout(requestPath string) bool {
	return matchesPrefix(requestPath, "/logout") || matchesPrefix(requestPath, "/auth/logout")
}

// matchesPrefix matches whole path segments: "/api" matches "/api" and
// "/api/v1/books" but not "/apidocs".
func matchesPrefix(requestPath, prefix string) bool {
	if !strings.HasPrefix(requestPath, prefix) {
		return false
	}

	return len(requestPath) == len(prefix) || requestPath[len(prefix)] == '/'
}

func parseClass(name string) (RouteClass, bool) {
	switch RouteClass(strings.ToLower(strings.TrimSpace(name))) {
	case ClassAdmin:
		return ClassAdmin, true
	case ClassAPI:
		return ClassAPI, true
	case ClassAuth:
		return ClassAuth, true
	case ClassStatic:
		return ClassStatic, true
	case ClassPublic:
		return ClassPublic, true
	default:
		return "", false
	}
}
