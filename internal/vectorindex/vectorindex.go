package vectorindex

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"webpage-rag/internal/models"
)

// DefaultTopK is the retrieval depth used when the caller passes k <= 0.
const DefaultTopK = 8

const collectionName = "page"

// Index is one session's knowledge base: an in-memory chromem collection of
// embedded chunks. It is never mutated after Build; a re-ingestion builds a
// fresh Index.
type Index struct {
	embedder embeddings.Embedder
	coll     *chromem.Collection
	size     int
}

// Build embeds every chunk and stores it in a new in-memory collection. Any
// embedding failure aborts the whole build; no partial index is returned.
func Build(ctx context.Context, chunks []models.Chunk, embedder embeddings.Embedder) (*Index, error) {
	if len(chunks) == 0 {
		return nil, models.ErrEmptyContent
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}
	if len(vectors) != len(chunks) {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("embedded %d of %d chunks", len(vectors), len(chunks))}
	}

	db := chromem.NewDB()
	coll, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%s-%d", c.Source, c.ChunkID),
			Content:   c.Content,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"chunk_id": strconv.Itoa(c.ChunkID),
				"source":   c.Source,
			},
		}
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}

	log.Debug().Int("chunks", len(chunks)).Msg("Built vector index")
	return &Index{embedder: embedder, coll: coll, size: len(chunks)}, nil
}

// Size reports the number of indexed chunks.
func (ix *Index) Size() int { return ix.size }

// Retrieve embeds the query and returns up to min(k, Size()) chunks ranked by
// descending cosine similarity. Equal similarities keep chunk order, earlier
// chunk first.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if k > ix.size {
		k = ix.size
	}

	vector, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}

	// Query every chunk and apply the ranking and the cut to k here: chromem's
	// own selection order at equal similarity is arbitrary, so letting it cut
	// first could drop an earlier chunk that ties at the boundary.
	results, err := ix.coll.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       ix.size,
	})
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	retrieved := make([]models.RetrievedChunk, 0, len(results))
	for _, r := range results {
		id, _ := strconv.Atoi(r.Metadata["chunk_id"])
		retrieved = append(retrieved, models.RetrievedChunk{
			Content:    r.Content,
			ChunkID:    id,
			Similarity: r.Similarity,
		})
	}
	sort.SliceStable(retrieved, func(i, j int) bool {
		if retrieved[i].Similarity != retrieved[j].Similarity {
			return retrieved[i].Similarity > retrieved[j].Similarity
		}
		return retrieved[i].ChunkID < retrieved[j].ChunkID
	})
	if len(retrieved) > k {
		retrieved = retrieved[:k]
	}
	return retrieved, nil
}
