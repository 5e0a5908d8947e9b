package embedding

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var wordRE = regexp.MustCompile(`[a-z0-9]+`)

// FallbackEmbeddings produces hashed bag-of-words vectors with no external
// dependency. Each lowercased alphanumeric word is FNV-1a hashed to a slot
// in [0, Dim) and counted, then the vector is L2-normalized. FNV-1a is fixed
// across processes and restarts, so identical text always yields an
// identical vector. A text with no words stays all-zero.
//
// The result supports only coarse keyword-level cosine similarity; it exists
// so the system degrades instead of halting when no embedding provider is
// configured.
func FallbackEmbeddings(texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = fallbackVector(text)
	}
	return vectors
}

func fallbackVector(text string) []float32 {
	vec := make([]float32, Dim)
	words := wordRE.FindAllString(strings.ToLower(text), -1)

	for _, word := range words {
		vec[wordSlot(word)]++
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(math.Sqrt(sumSquares))
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}

func wordSlot(word string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return int(h.Sum32() % Dim)
}
