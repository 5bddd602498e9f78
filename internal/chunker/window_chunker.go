// Package chunker splits documents into overlapping fixed-size windows.
package chunker

import (
	"fmt"
	"strconv"

	"legalrag/internal/domain"
)

// Defaults used when ingesting the knowledge base.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Span is a window over a text, measured in runes.
type Span struct {
	Start int
	End   int
	Text  string
}

// WindowChunker splits text into windows of at most chunkSize runes where
// consecutive windows share overlap runes.
type WindowChunker struct {
	chunkSize int
	overlap   int
}

// New returns a chunker, or ErrInvalidConfiguration when the sizes cannot
// produce a forward-moving window.
func New(chunkSize, overlap int) (*WindowChunker, error) {
	if chunkSize <= 0 || overlap <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d and overlap %d must be positive",
			domain.ErrInvalidConfiguration, chunkSize, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			domain.ErrInvalidConfiguration, overlap, chunkSize)
	}
	return &WindowChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the configured window length.
func (c *WindowChunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap between neighbouring windows.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Split returns the windows covering text in source order.
// Empty text produces no windows. text must be valid UTF-8; invalid bytes
// would become U+FFFD and the windows would no longer rebuild the input.
// The loader guarantees this for every SourceDocument.
func (c *WindowChunker) Split(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	step := c.chunkSize - c.overlap
	spans := make([]Span, 0, n/step+1)
	for start := 0; ; start += step {
		end := start + c.chunkSize
		if end > n {
			end = n
		}
		spans = append(spans, Span{Start: start, End: end, Text: string(runes[start:end])})
		if end == n {
			break
		}
	}
	return spans
}

// Chunk splits a source document and attaches provenance to every window.
func (c *WindowChunker) Chunk(doc domain.SourceDocument) []domain.Chunk {
	spans := c.Split(doc.Content)
	if len(spans) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = domain.Chunk{
			ID:         doc.ID + ":" + strconv.Itoa(i),
			DocumentID: doc.ID,
			Source:     doc.Path,
			Index:      i,
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
		}
	}
	return chunks
}
