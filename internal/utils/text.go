package utils

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text, strips punctuation and splits it into word
// tokens. Splitting is unicode-aware so Cyrillic questions tokenize the
// same way as Latin ones.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeToken lowercases and trims a single token. Used when indexing
// FAQ keywords so lookups and queries agree on the normal form.
func NormalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// TruncateMessage caps a message at maxLen runes, appending an ellipsis
// when content was cut. WhatsApp rejects bodies over its length limit.
func TruncateMessage(message string, maxLen int) string {
	if maxLen <= 0 {
		return message
	}
	runes := []rune(message)
	if len(runes) <= maxLen {
		return message
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// FormatForLogging shortens a message body for log output.
func FormatForLogging(message string, maxLen int) string {
	runes := []rune(message)
	if len(runes) <= maxLen {
		return message
	}
	return string(runes[:maxLen]) + "..."
}
