package domain

import "time"

// DocumentType identifies how a knowledge-base file was read.
type DocumentType string

const (
	DocumentPDF      DocumentType = "pdf"
	DocumentText     DocumentType = "txt"
	DocumentMarkdown DocumentType = "md"
)

// SourceDocument represents a single reference file loaded from the knowledge base.
type SourceDocument struct {
	ID      string
	Path    string
	Type    DocumentType
	Content string
}

// Chunk is a contiguous window of a source document used for indexing.
// Start and End are rune offsets into the source content.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

// Vector is a fixed-dimension embedding.
type Vector []float32

// IndexEntry is a chunk together with its embedding.
type IndexEntry struct {
	Chunk  Chunk
	Vector Vector
}

// SearchResult represents a matching entry with a relevance score.
// Higher scores are more similar.
type SearchResult struct {
	Entry IndexEntry
	Score float64
}

// IndexInfo is recorded alongside an index so that later readers interpret
// chunk spans and vectors the same way the writer did.
type IndexInfo struct {
	Generation     string    `json:"generation"`
	ChunkSize      int       `json:"chunk_size"`
	Overlap        int       `json:"overlap"`
	Dimension      int       `json:"dimension"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
	Size           int       `json:"size"`
}

// IngestionReport summarises one ingestion run.
type IngestionReport struct {
	Generation      string
	DocumentsLoaded int
	ChunksProduced  int
	ChunksEmbedded  int
	IndexSize       int
	Duration        time.Duration
}

// RetrievedContext holds reference snippets ranked best first.
type RetrievedContext []string

// QueryRequest is a question about the user's own document.
type QueryRequest struct {
	DocumentText string
	Question     string
}

// QueryState tracks the progress of a single query pipeline run.
type QueryState int

const (
	StateIdle QueryState = iota
	StateRetrieving
	StateComposing
	StateGenerating
	StateDone
	StateFailed
)

func (s QueryState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StateComposing:
		return "composing"
	case StateGenerating:
		return "generating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Answer is the text returned to the user. Fallback is set when Text is the
// fixed user-safe message rather than generated output.
type Answer struct {
	Text     string
	State    QueryState
	Fallback bool
}
