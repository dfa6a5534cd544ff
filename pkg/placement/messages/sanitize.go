package messages

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxContentLength is the longest message body accepted, in characters
const MaxContentLength = 4000

var contentPolicy = bluemonday.StrictPolicy()

// SanitizeContent strips all markup from a message body and returns plain text.
// Entities escaped by the policy are decoded again because clients render text, not HTML.
func SanitizeContent(s string) string {
	return strings.TrimSpace(html.UnescapeString(contentPolicy.Sanitize(s)))
}
