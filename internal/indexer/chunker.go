package indexer

import "strings"

// WordChunker splits text into overlapping word-aligned chunks. Size and
// Overlap are measured in characters, counting one separating space per word.
type WordChunker struct {
	Size    int
	Overlap int
}

// NewWordChunker creates a chunker. Overlap must be smaller than Size or the
// walk could stall; callers validate that at config load.
func NewWordChunker(size, overlap int) *WordChunker {
	return &WordChunker{Size: size, Overlap: overlap}
}

// Chunk splits text into chunks of roughly Size characters with roughly
// Overlap characters shared between neighbours. Whitespace-only input yields
// no chunks. Every word is covered and chunk starts strictly increase.
func (c *WordChunker) Chunk(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0

	for start < len(words) {
		length := 0
		i := start
		for i < len(words) && length < c.Size {
			length += len(words[i]) + 1
			i++
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			Text:  strings.Join(words[start:i], " "),
		})

		if i >= len(words) {
			break
		}

		// Step back enough words to cover the overlap budget.
		overlapChars := 0
		stepBack := 0
		for j := i - 1; j >= start; j-- {
			overlapChars += len(words[j]) + 1
			stepBack++
			if overlapChars >= c.Overlap {
				break
			}
		}

		next := i - stepBack
		// Guarantee forward progress even when the overlap swallows the
		// whole chunk.
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}
