package syncer

import (
	"regexp"
	"strings"
)

// noisePatterns catches agent meta-speak, system preambles, reaction
// announcements, and prior-injection echoes so they never get appended to
// the Store as if they were real conversation turns.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^##?\s*retrieved context`),
	regexp.MustCompile(`(?i)^##?\s*recovered context`),
	regexp.MustCompile(`(?i)\(retrieved context ends\)`),
	regexp.MustCompile(`(?i)\(recovered context ends\)`),
	regexp.MustCompile(`(?i)^reacted with .+ to`),
	regexp.MustCompile(`(?i)^\s*thinking\.\.\.\s*$`),
	regexp.MustCompile(`(?i)^system: `),
}

// isNoise reports whether text should be dropped rather than synced.
func isNoise(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, p := range noisePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}
