package agent

import (
	"strings"
	"unicode"
)

// Phrases customers use when stacking several requests in one message.
var multiQueryPhrases = []string{
	"también quiero saber",
	"además",
	"por otro lado",
	"otra pregunta",
	"otra cosa",
	"y también",
}

// HasMultipleQuestions reports whether text looks like more than one
// question: at least two sentences ending in "?" or a connector phrase.
func HasMultipleQuestions(text string) bool {
	if strings.Count(text, "?") > 1 {
		questions := 0
		for _, s := range splitSentences(text) {
			if strings.HasSuffix(strings.TrimSpace(s), "?") {
				questions++
			}
		}
		if questions > 1 {
			return true
		}
	}

	lower := strings.ToLower(text)
	for _, p := range multiQueryPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// splitSentences breaks after ".", "!" or "?" followed by whitespace, and
// after every newline.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		end := false
		switch {
		case r == '\n':
			end = true
		case r == '.' || r == '!' || r == '?':
			end = i+1 < len(runes) && unicode.IsSpace(runes[i+1])
		}
		if end {
			out = append(out, string(runes[start:i+1]))
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
