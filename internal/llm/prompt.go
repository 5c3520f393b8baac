package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSystemPrompt opens every reply generation.
const DefaultSystemPrompt = `You are a helpful assistant. Answer clearly and concisely.
When the conversation contains system messages with web search results or file contents,
use them as context and cite sources where relevant.`

const titleSystemPrompt = `You name conversations. Reply with a short title of at most six words
that captures the topic. No quotes, no trailing punctuation, no explanation.`

// maxTitleLen bounds titles in runes.
const maxTitleLen = 60

func titleUserPrompt(userText, replyText string) string {
	return fmt.Sprintf(`User message:
%s

Assistant reply:
%s

Title:`, truncate(userText, 1000), truncate(replyText, 1000))
}

// CleanTitle normalizes model output into a single-line title.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Title:", "title:", "TITLE:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	s = strings.Trim(s, "\"'`*#“”‘’ ")
	s = strings.TrimRight(s, ".!?:;,")
	s = strings.TrimSpace(s)
	return truncate(s, maxTitleLen)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
