package task

import "strings"

// LastNWords returns the last n whitespace-separated words of s,
// joined by single spaces.
func LastNWords(s string, n int) string {
	if n <= 0 {
		return ""
	}

	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}

	return strings.Join(words, " ")
}
