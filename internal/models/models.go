package models

// Document is the raw text fetched from a URL, consumed by the chunker.
type Document struct {
	Content string
	Source  string
}

// Chunk is one bounded span of a document, positioned by ChunkID.
type Chunk struct {
	Content string
	ChunkID int
	Source  string
}

// RetrievedChunk is a chunk returned from a similarity search.
type RetrievedChunk struct {
	Content    string
	ChunkID    int
	Similarity float32
}

// ConversationTurn is one answered question, insertion-ordered.
type ConversationTurn struct {
	Question string
	Answer   string
}
