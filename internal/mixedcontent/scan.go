// Package mixedcontent detects and rewrites insecure (http://) resource
// references in rendered HTML.
//
// Both the scanner and the fixer are textual, regex-based passes, not
// DOM-aware parsing. That is a deliberate trade-off: they can miss attributes
// with unusual quoting and may rewrite a literal "http://" inside visible
// text that happens to sit in a src/href/action position. Treat the results
// as a best-effort lint for the page builder, not a security guarantee.
package mixedcontent

import "regexp"

// Issue is a single insecure resource reference found in markup.
type Issue struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Report is the result of scanning one HTML document.
type Report struct {
	HasIssues bool    `json:"hasIssues"`
	Issues    []Issue `json:"issues"`
}

// detector binds a resource type name to the pattern that finds it.
type detector struct {
	resource string
	pattern  *regexp.Regexp
}

// Scanners keyed by tag. The URL is always capture group 1.
var detectors = []detector{
	{"image", regexp.MustCompile(`(?is)<img\b[^>]*?\bsrc\s*=\s*["'](http://[^"']+)["']`)},
	{"script", regexp.MustCompile(`(?is)<script\b[^>]*?\bsrc\s*=\s*["'](http://[^"']+)["']`)},
	{"link", regexp.MustCompile(`(?is)<link\b[^>]*?\bhref\s*=\s*["'](http://[^"']+)["']`)},
	{"iframe", regexp.MustCompile(`(?is)<iframe\b[^>]*?\bsrc\s*=\s*["'](http://[^"']+)["']`)},
	{"form", regexp.MustCompile(`(?is)<form\b[^>]*?\baction\s*=\s*["'](http://[^"']+)["']`)},
}

var (
	// attrPattern rewrites http:// inside src=, href= and action= attributes.
	attrPattern = regexp.MustCompile(`(?i)(src|href|action)(\s*=\s*["']?)http://`)
	// cssURLPattern rewrites http:// inside CSS url() references.
	cssURLPattern = regexp.MustCompile(`(?i)(url\(\s*["']?)http://`)
)

// Detect scans HTML for insecure resource references and reports them by
// tag type. Absence of an issue in the report is not proof the markup is
// clean - see the package comment.
func Detect(html string) Report {
	var issues []Issue

	for _, d := range detectors {
		for _, match := range d.pattern.FindAllStringSubmatch(html, -1) {
			issues = append(issues, Issue{Type: d.resource, URL: match[1]})
		}
	}

	return Report{
		HasIssues: len(issues) > 0,
		Issues:    issues,
	}
}

// Fix rewrites http:// to https:// in src=, href=, action= attributes and
// CSS url() occurrences. Idempotent: fixed markup contains no http://
// occurrences in those positions, so a second pass is a no-op.
func Fix(html string) string {
	html = attrPattern.ReplaceAllString(html, "${1}${2}https://")

	return cssURLPattern.ReplaceAllString(html, "${1}https://")
}
