package chunker

import (
	"fmt"
	"strings"

	"webpage-rag/internal/models"
)

// Splitter cuts text into overlapping character windows, preferring to break
// at paragraph, sentence or word boundaries inside the window over a hard cut.
type Splitter struct {
	chunkSize int
	overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 1 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [1, chunk size), got %d", overlap)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split consumes the text greedily. Each window is at most chunkSize runes;
// consecutive chunks share overlap runes unless a chunk ended the text.
// Empty or whitespace-only input yields no chunks.
func (s *Splitter) Split(doc models.Document) []models.Chunk {
	runes := []rune(doc.Content)
	if len(strings.TrimSpace(doc.Content)) == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	id := 0
	for start < len(runes) {
		end := start + s.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.breakPoint(runes, start, end)
		}
		chunks = append(chunks, models.Chunk{
			Content: string(runes[start:end]),
			ChunkID: id,
			Source:  doc.Source,
		})
		if end == len(runes) {
			break
		}
		start = end - s.overlap
		id++
	}
	return chunks
}

// breakPoint picks the latest natural boundary inside runes[start:limit],
// scanning for a paragraph break first, then a sentence end, then a word gap.
// The boundary must leave the window more than overlap runes long so the next
// window still advances. Falls back to the hard limit.
func (s *Splitter) breakPoint(runes []rune, start, limit int) int {
	min := start + s.overlap + 1
	win := runes[start:limit]

	if i := lastIndexRunes(win, []rune("\n\n")); i >= 0 && start+i+2 >= min {
		return start + i + 2
	}
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := lastIndexRunes(win, []rune(sep)); i > best {
			best = i
		}
	}
	if best >= 0 && start+best+2 >= min {
		return start + best + 2
	}
	for i := len(win) - 1; i >= 0; i-- {
		if win[i] == ' ' || win[i] == '\n' || win[i] == '\t' {
			if start+i+1 >= min {
				return start + i + 1
			}
			break
		}
	}
	return limit
}

func lastIndexRunes(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
