// Package retriever implements the Smart Retriever (C4): it turns recent
// user turns into a bounded Store search and formats a "Retrieved Context"
// block for injection into the agent's prompt.
package retriever

import (
	"strings"
	"unicode"

	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

const (
	maxUserMessages = 3
	maxQueryChars   = 500
	topTermCount    = 20
	minTermLength   = 4
)

// fillerWords is the closed list of low-signal words stripped before
// keyword extraction, analogous in spirit to orsinium-labs/stopwords but
// kept small and explicit since we only need to bias term selection, not
// do full NLP stopword removal.
var fillerWords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"have": true, "what": true, "from": true, "they": true, "would": true,
	"there": true, "their": true, "about": true, "which": true, "when": true,
	"could": true, "should": true, "into": true, "your": true, "were": true,
}

// BuildQuery constructs a bounded search query from the last maxUserMessages
// non-trivial user-role messages in lines (most recent last).
func BuildQuery(userMessages []string) string {
	trimmed := make([]string, 0, len(userMessages))
	for _, m := range userMessages {
		m = strings.TrimSpace(m)
		if m != "" {
			trimmed = append(trimmed, m)
		}
	}
	if len(trimmed) == 0 {
		return ""
	}
	if len(trimmed) > maxUserMessages {
		trimmed = trimmed[len(trimmed)-maxUserMessages:]
	}

	last := trimmed[len(trimmed)-1]
	if idx := strings.IndexRune(last, '?'); idx >= 0 {
		query := strings.TrimSpace(last[:idx+1])
		return capQuery(query)
	}

	concatenated := strings.Join(trimmed, " ")
	terms := topTerms(concatenated)
	return capQuery(strings.Join(terms, " "))
}

// topTerms extracts up to topTermCount words of length >= minTermLength,
// skipping filler words, preserving original order of first occurrence.
func topTerms(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		lower := strings.ToLower(f)
		if len([]rune(lower)) < minTermLength {
			continue
		}
		if fillerWords[lower] {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		terms = append(terms, lower)
		if len(terms) >= topTermCount {
			break
		}
	}
	return terms
}

func capQuery(q string) string {
	r := []rune(q)
	if len(r) > maxQueryChars {
		return string(r[:maxQueryChars])
	}
	return q
}

// ExtractRecentUserMessages reads sessionFile and returns up to
// maxUserMessages trimmed, non-empty user-role message texts in chronological
// order (oldest first, most recent last).
func ExtractRecentUserMessages(sessionFile string) ([]string, error) {
	lines, _, err := transcript.ReadLines(sessionFile, 0)
	if err != nil {
		return nil, err
	}

	var userTexts []string
	for _, line := range lines {
		rec, err := transcript.ParseLine(line)
		if err != nil || rec == nil {
			continue
		}
		if !rec.IsMessage() || rec.Role != transcript.RoleUser {
			continue
		}
		text := strings.TrimSpace(rec.Text())
		if text == "" {
			continue
		}
		userTexts = append(userTexts, text)
	}
	if len(userTexts) > maxUserMessages {
		userTexts = userTexts[len(userTexts)-maxUserMessages:]
	}
	return userTexts, nil
}
