package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// cleanReply strips model artifacts that must never reach a customer and
// adapts Markdown emphasis to WhatsApp formatting. An all-artifact reply
// comes back empty.
func cleanReply(content string) string {
	if content == "" {
		return content
	}
	original := content

	content = stripThinkingTags(content)
	content = stripFinalTags(content)
	content = stripEchoedSystemMessages(content)
	content = collapseDuplicateParagraphs(content)
	content = whatsappEmphasis(content)
	content = strings.TrimSpace(content)

	if content != strings.TrimSpace(original) {
		slog.Debug("reply cleaned", "original_len", len(original), "cleaned_len", len(content))
	}
	return content
}

// Go regexp has no backreferences, so each tag gets its own pattern.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	for _, pat := range thinkingTagPatterns {
		content = pat.ReplaceAllString(content, "")
	}
	return content
}

var finalTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

func stripFinalTags(content string) string {
	return finalTagPattern.ReplaceAllString(content, "")
}

// stripEchoedSystemMessages drops "[System Message]" blocks up to the next
// blank line.
func stripEchoedSystemMessages(content string) string {
	if !strings.Contains(content, "[System Message]") {
		return content
	}

	var kept []string
	skipping := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[System Message]") {
			skipping = true
			continue
		}
		if skipping {
			if trimmed == "" {
				skipping = false
			}
			continue
		}
		kept = append(kept, line)
	}

	slog.Warn("stripped echoed system message from reply")
	return strings.Join(kept, "\n")
}

func collapseDuplicateParagraphs(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}

	var kept []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(kept) > 0 && trimmed == strings.TrimSpace(kept[len(kept)-1]) {
			continue
		}
		kept = append(kept, block)
	}
	return strings.Join(kept, "\n\n")
}

var (
	markdownBold    = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	markdownHeading = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
)

// whatsappEmphasis rewrites **bold** and "# Heading" lines as WhatsApp *bold*.
func whatsappEmphasis(content string) string {
	content = markdownBold.ReplaceAllString(content, "*$1*")
	return markdownHeading.ReplaceAllString(content, "*$1*")
}
