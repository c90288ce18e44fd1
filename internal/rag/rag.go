package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"webpage-rag/internal/config"
	"webpage-rag/internal/llmservice"
	"webpage-rag/internal/models"
	"webpage-rag/internal/vectorindex"
)

// Loader fetches a URL and returns its usable text.
type Loader interface {
	Fetch(ctx context.Context, url string) (models.Document, error)
}

// Splitter cuts a document into chunks for embedding.
type Splitter interface {
	Split(doc models.Document) []models.Chunk
}

// Session binds one vector index to one conversation history. All access to
// both goes through the session mutex, so an in-flight Ask always completes
// against a consistent index/history pair.
type Session struct {
	mu      sync.Mutex
	index   *vectorindex.Index
	history []models.ConversationTurn
}

// History returns a copy of the conversation so far.
func (s *Session) History() []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationTurn, len(s.history))
	copy(out, s.history)
	return out
}

// replace swaps in a freshly built index and discards the history, which
// could otherwise reference a knowledge base that is no longer indexed.
func (s *Session) replace(index *vectorindex.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
	s.history = nil
}

// Registry owns every session. Lookups and inserts go through the registry
// lock; per-session state is only touched under that session's own lock.
// Sessions live until process teardown, there is no delete operation.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	loader    Loader
	splitter  Splitter
	embedder  embeddings.Embedder
	generator llmservice.Generator
	cfg       config.RAGConfig
}

func NewRegistry(loader Loader, splitter Splitter, embedder embeddings.Embedder, generator llmservice.Generator, cfg config.RAGConfig) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		loader:    loader,
		splitter:  splitter,
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
	}
}

// LoadURL runs the ingestion pipeline (fetch, chunk, embed, index) and, only
// once the whole pipeline succeeded, replaces the session at sessionID with
// the new index and an empty history. On any failure the existing session is
// left untouched.
func (r *Registry) LoadURL(ctx context.Context, sessionID, url string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout())
	defer cancel()
	doc, err := r.loader.Fetch(fetchCtx, url)
	if err != nil {
		return err
	}

	chunks := r.splitter.Split(doc)
	if len(chunks) == 0 {
		return models.ErrEmptyContent
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.embedTimeout())
	defer cancel()
	index, err := vectorindex.Build(embedCtx, chunks, r.embedder)
	if err != nil {
		return err
	}

	sess := r.getOrCreate(sessionID)
	sess.replace(index)
	log.Info().Str("session_id", sessionID).Str("url", url).Int("chunks", len(chunks)).Msg("Session loaded")
	return nil
}

// Ask answers a question against the session's current index, appending the
// turn to its history on success. Fails with ErrSessionNotFound when no
// successful LoadURL happened for this id yet.
func (r *Registry) Ask(ctx context.Context, sessionID, question string) (string, error) {
	r.mu.RLock()
	sess := r.sessions[sessionID]
	r.mu.RUnlock()
	if sess == nil {
		return "", fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	retrieveCtx, cancel := context.WithTimeout(ctx, r.embedTimeout())
	defer cancel()
	retrieved, err := sess.index.Retrieve(retrieveCtx, question, r.cfg.TopK)
	if err != nil {
		return "", err
	}

	prompt := buildPrompt(retrieved, sess.history, question)

	genCtx, cancel := context.WithTimeout(ctx, r.genTimeout())
	defer cancel()
	answer, err := r.generator.Generate(genCtx, prompt)
	if err != nil {
		// No partial turn is recorded.
		return "", &models.GenerationError{Err: err}
	}

	sess.history = append(sess.history, models.ConversationTurn{Question: question, Answer: answer})
	return answer, nil
}

// Session returns the session for the id, or nil if none exists.
func (r *Registry) Session(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

func (r *Registry) getOrCreate(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		sess = &Session{}
		r.sessions[sessionID] = sess
	}
	return sess
}

// buildPrompt fills the fixed template with the ranked context, the rendered
// history and the verbatim question.
func buildPrompt(retrieved []models.RetrievedChunk, history []models.ConversationTurn, question string) string {
	texts := make([]string, len(retrieved))
	for i, c := range retrieved {
		texts[i] = c.Content
	}
	return fmt.Sprintf(models.RAGPromptTemplate,
		strings.Join(texts, models.ContextSeparator),
		renderHistory(history),
		question,
	)
}

func renderHistory(history []models.ConversationTurn) string {
	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString("Human: ")
		sb.WriteString(turn.Question)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(turn.Answer)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *Registry) fetchTimeout() time.Duration {
	return secs(r.cfg.FetchTimeoutSecs, 30)
}

func (r *Registry) embedTimeout() time.Duration {
	return secs(r.cfg.EmbedTimeoutSecs, 120)
}

func (r *Registry) genTimeout() time.Duration {
	return secs(r.cfg.GenTimeoutSecs, 120)
}

func secs(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
