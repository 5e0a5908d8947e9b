package ingestion

import (
	"regexp"
	"strings"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

var paragraphSplitRE = regexp.MustCompile(`\n{2,}`)

// ChunkText splits text into chunks on blank-line paragraph boundaries.
// Size is measured in whitespace-delimited words. When appending the next
// paragraph would push the buffer past maxSize, the buffer is emitted and
// the next chunk is seeded with the last overlap words of the emitted chunk.
//
// A single paragraph longer than maxSize is kept whole: paragraph integrity
// wins over the size bound. Pure function; identical input yields identical
// chunks.
func ChunkText(text string, maxSize, overlap int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	paragraphs := paragraphSplitRE.Split(text, -1)

	var chunks []string
	var current []string
	currentLen := 0

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		words := strings.Fields(para)

		if currentLen+len(words) > maxSize && len(current) > 0 {
			chunk := strings.Join(current, " ")
			chunks = append(chunks, chunk)

			current = nil
			currentLen = 0
			if overlap > 0 {
				carried := strings.Fields(chunk)
				if len(carried) > overlap {
					carried = carried[len(carried)-overlap:]
				}
				current = []string{strings.Join(carried, " ")}
				currentLen = len(carried)
			}
		}

		current = append(current, para)
		currentLen += len(words)
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}
