// Package chunk splits extracted document text into overlapping,
// boundary-aware chunks for embedding generation.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// breakSearchWindow is how far back from the window end Split looks
// for a natural break point.
const breakSearchWindow = 200

// separators in priority order: paragraph, line, sentence ends.
// A plain space is the final fallback before a hard cut.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; "}

// Chunk is a contiguous slice of document text with position metadata.
// Start and End are offsets into the original, untrimmed text; Text has
// leading and trailing whitespace removed.
type Chunk struct {
	Text  string
	Index int
	Start int
	End   int
}

// Split divides text into overlapping chunks of at most size bytes,
// preferring to break at paragraph and sentence boundaries. Consecutive
// chunks overlap by up to overlap bytes. Indices are assigned
// sequentially from 0, one per non-empty chunk.
//
// Split always terminates: when the overlap would prevent the window
// from advancing, the next window starts at the previous break instead.
func Split(text string, size, overlap int) []Chunk {
	if text == "" {
		return nil
	}

	if len(text) <= size {
		return []Chunk{{Text: text, Index: 0, Start: 0, End: len(text)}}
	}

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			// Keep the window bound on a rune boundary so a hard cut
			// never splits a multi-byte character.
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				end = start + size
			}
			end = findBreak(text, start, end)
		}

		trimmed := strings.TrimSpace(text[start:end])
		if trimmed != "" {
			chunks = append(chunks, Chunk{
				Text:  trimmed,
				Index: index,
				Start: start,
				End:   end,
			})
			index++
		}

		next := end - overlap
		for next > start && next < len(text) && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// findBreak returns the best break point at or before end, searching
// backward through the last breakSearchWindow bytes of the window.
// Returns end unchanged if no separator or space is found.
func findBreak(text string, start, end int) int {
	searchStart := end - breakSearchWindow
	if searchStart < start+1 {
		searchStart = start + 1
	}
	window := text[searchStart:end]

	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx != -1 {
			return searchStart + idx + len(sep)
		}
	}

	if idx := strings.LastIndex(window, " "); idx != -1 {
		return searchStart + idx + 1
	}

	return end
}
