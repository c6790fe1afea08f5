// Package sanitize provides HTML sanitization for user-generated content:
// program descriptions written by staff and student bios. It uses
// bluemonday to strip dangerous HTML (script tags, event handlers,
// javascript: URLs) while keeping basic formatting.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richPolicy     *bluemonday.Policy
	richPolicyOnce sync.Once

	textPolicy     *bluemonday.Policy
	textPolicyOnce sync.Once
)

// getRichPolicy returns the shared policy for formatted content.
func getRichPolicy() *bluemonday.Policy {
	richPolicyOnce.Do(func() {
		richPolicy = bluemonday.UGCPolicy()

		// Syllabus tables in program descriptions.
		richPolicy.AllowElements("table", "thead", "tbody", "tr", "td", "th", "caption")
		richPolicy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

		// Links written by staff open in a new tab.
		richPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	})
	return richPolicy
}

func getTextPolicy() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// HTML sanitizes user-provided HTML, keeping safe formatting tags.
//
// This MUST be called on all user-provided HTML before storing it. The
// output is safe to render unescaped.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	return getRichPolicy().Sanitize(input)
}

// Text strips all markup from input and trims surrounding whitespace. Used
// for single-line fields such as names and summaries. The result is plain
// text; views escape it when rendering.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(getTextPolicy().Sanitize(input)))
}
