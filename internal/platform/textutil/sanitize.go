package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup and control characters from free-form user
// input and caps it at limit runes. A non-positive limit disables the cap.
func SanitizeText(value string, limit int) string {
	stripped := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned := make([]rune, 0, len(stripped))
	for _, r := range stripped {
		if unicode.IsControl(r) && r != '\n' {
			continue
		}
		cleaned = append(cleaned, r)
		if limit > 0 && len(cleaned) == limit {
			break
		}
	}
	return strings.TrimSpace(string(cleaned))
}
