// Package sentence splits lesson text into sentence-aligned chunks that a
// speech engine can synthesize one at a time.
package sentence

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the chunk size used when the caller passes a
// non-positive limit. Browser speech engines cut off long utterances
// somewhere above 200 characters.
const DefaultMaxLength = 160

// Split breaks text into chunks of at most maxLength runes. Sentences are
// never divided: a sentence longer than maxLength is emitted whole as its
// own chunk. Chunks are trimmed and whitespace-only chunks are dropped, so
// empty input yields an empty (nil) slice.
func Split(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var (
		chunks  []string
		current string
	)
	flush := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, s := range Sentences(text) {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(s) > maxLength {
			if strings.TrimSpace(current) != "" {
				flush(current)
				current = s
			} else {
				flush(s)
				current = ""
			}
			continue
		}
		current += s
	}
	flush(current)

	return chunks
}

// Sentences returns the raw sentences of text, untrimmed. A sentence ends
// after a run of terminal punctuation (. ! ?) and any closing quotes or
// brackets that follow it. Whatever trails the last terminator becomes the
// final sentence. Concatenating the result reproduces text exactly.
func Sentences(text string) []string {
	var (
		out   []string
		start int
	)
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminal(r) {
			i += size
			continue
		}
		// consume the whole punctuation run, e.g. "?!" or "..."
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !isTerminal(r) {
				break
			}
			i += size
		}
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !isCloser(r) {
				break
			}
			i += size
		}
		out = append(out, text[start:i])
		start = i
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case ']', ')', '\'', '"', '`', '’', '”':
		return true
	}
	return false
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
