package services

import (
	"strings"
	"unicode/utf8"
)

// minSentenceRunes is how long a fragment must be before terminal
// punctuation ends it. Keeps "Mr." or "Oh!" attached to what follows.
const minSentenceRunes = 10

// SplitSentences splits text after '.', '!' or '?' once the current sentence
// is longer than minSentenceRunes. The trailing remainder is kept as a
// sentence of its own.
func SplitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
		length    int
	)

	for _, r := range text {
		current.WriteRune(r)
		length++

		if (r == '.' || r == '!' || r == '?') && length > minSentenceRunes {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
			length = 0
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

// SplitIntoChunks groups sentences into chunks of roughly chunkSize
// characters. A chunk is closed when the next sentence would push it past
// chunkSize, so a sentence is never split and a chunk always holds at least
// one whole sentence. Empty input yields []string{text}.
func SplitIntoChunks(text string, chunkSize int) []string {
	var (
		chunks  []string
		current string
	)

	for _, sentence := range SplitSentences(text) {
		if current != "" && utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence) > chunkSize {
			chunks = append(chunks, strings.TrimSpace(current))
			current = sentence
			continue
		}
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
