// Package formatting provides text helpers shared across domains: label
// normalization and cleanup of model-generated prose.
package formatting

import (
	"regexp"
	"strings"
)

var fenceRegex = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \t]*\n?(.*?)\n?```$")

// Unfence returns content with a single enclosing markdown code fence
// removed. Content that is not wholly fenced is returned trimmed but
// otherwise unchanged.
func Unfence(content string) string {
	content = strings.TrimSpace(content)
	if m := fenceRegex.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return content
}
