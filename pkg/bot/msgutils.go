package bot

import (
	"strings"
	"unicode/utf8"
)

// maxMessageLength is the longest message Discord accepts, in characters.
const maxMessageLength = 2000

// splitMessage splits content into messages of at most maxLength characters,
// breaking on newlines where possible. Lines longer than maxLength are cut.
// Blank parts are dropped since Discord rejects empty messages.
func splitMessage(content string, maxLength int) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if utf8.RuneCountInString(content) <= maxLength {
		return []string{content}
	}

	var (
		messages []string
		length   int
		buf      strings.Builder
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		if part := strings.TrimSuffix(buf.String(), "\n"); strings.TrimSpace(part) != "" {
			messages = append(messages, part)
		}
		buf.Reset()
		length = 0
	}

	for _, line := range strings.Split(content, "\n") {
		for _, part := range cut(line, maxLength) {
			partWithNewline := part + "\n"
			partLength := utf8.RuneCountInString(partWithNewline)
			// The trailing newline of the last part in a message is dropped,
			// so it does not count towards the limit.
			if length+partLength-1 > maxLength {
				flush()
			}
			buf.WriteString(partWithNewline)
			length += partLength
		}
	}
	flush()
	return messages
}

// cut splits s into pieces of at most n characters.
func cut(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var parts []string
	runes := []rune(s)
	for len(runes) > n {
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return append(parts, string(runes))
}
