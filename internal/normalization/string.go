package normalization

import (
	"regexp"
	"strings"
)

func ParseInputString(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	return normalized
}

func ParseInputStringPtr(input *string) *string {
	normalized := strings.ToLower(strings.TrimSpace(*input))
	return &normalized
}

var listNumbering = regexp.MustCompile(`^\s*\d+[\.\)\:]?\s*`)

// StripListNumbering removes leading "1." / "2)" / "3:" markers from roster lines.
func StripListNumbering(input string) string {
	return strings.TrimSpace(listNumbering.ReplaceAllString(input, ""))
}
