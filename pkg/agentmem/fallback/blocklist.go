package fallback

import (
	"regexp"
	"strings"
)

// blocklistPatterns catches injection markers, the recoverer's own headers,
// and media-attachment shorthands so recovered content never echoes
// previously-injected context or unreadable media placeholders back into a
// new injection — without this, a fallback block could inject its own past
// output right back into the transcript it reads from.
var blocklistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^##?\s*retrieved context`),
	regexp.MustCompile(`(?i)^##?\s*recovered context`),
	regexp.MustCompile(`(?i)\(retrieved context ends\)`),
	regexp.MustCompile(`(?i)\(recovered context ends\)`),
	regexp.MustCompile(`^\[(image|video|audio|file)[^\]]*\]$`),
	regexp.MustCompile(`(?i)^\[voice message\]$`),
}

// IsBlocked reports whether text matches the message blocklist.
func IsBlocked(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	for _, p := range blocklistPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}
