package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpage-rag/internal/chunker"
	"webpage-rag/internal/config"
	"webpage-rag/internal/models"
)

type fakeLoader struct {
	pages map[string]string
	err   error
}

func (f *fakeLoader) Fetch(_ context.Context, url string) (models.Document, error) {
	if f.err != nil {
		return models.Document{}, f.err
	}
	text, ok := f.pages[url]
	if !ok {
		return models.Document{}, &models.FetchError{URL: url, Err: errors.New("unreachable")}
	}
	if strings.TrimSpace(text) == "" {
		return models.Document{}, models.ErrEmptyContent
	}
	return models.Document{Content: text, Source: url}, nil
}

// fakeEmbedder maps every text to the same unit vector, so retrieval order is
// purely the insertion-order tie-break.
type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answers []string
	err     error
	calls   int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	f.calls++
	if len(f.answers) >= f.calls {
		return f.answers[f.calls-1], nil
	}
	return fmt.Sprintf("answer %d", f.calls), nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func newTestRegistry(t *testing.T, ldr Loader, gen *fakeGenerator) *Registry {
	t.Helper()
	splitter, err := chunker.NewSplitter(40, 8)
	require.NoError(t, err)
	return NewRegistry(ldr, splitter, &fakeEmbedder{}, gen, config.RAGConfig{TopK: 8})
}

func TestAskUnknownSession(t *testing.T) {
	reg := newTestRegistry(t, &fakeLoader{}, &fakeGenerator{})
	_, err := reg.Ask(context.Background(), "unknown-id", "hi")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestLoadURLEmptyContentCreatesNoSession(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{"http://empty": "   "}}
	reg := newTestRegistry(t, ldr, &fakeGenerator{})

	err := reg.LoadURL(context.Background(), "s1", "http://empty")
	assert.ErrorIs(t, err, models.ErrEmptyContent)
	assert.Nil(t, reg.Session("s1"))
}

func TestLoadURLFetchFailure(t *testing.T) {
	reg := newTestRegistry(t, &fakeLoader{pages: map[string]string{}}, &fakeGenerator{})

	err := reg.LoadURL(context.Background(), "s1", "http://nope")
	var fetchErr *models.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Nil(t, reg.Session("s1"))
}

func TestHistoryOrdering(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{"http://page": "Nikola Tesla was an inventor and engineer."}}
	gen := &fakeGenerator{}
	reg := newTestRegistry(t, ldr, gen)
	require.NoError(t, reg.LoadURL(context.Background(), "s1", "http://page"))

	const n = 5
	for i := 1; i <= n; i++ {
		answer, err := reg.Ask(context.Background(), "s1", fmt.Sprintf("question %d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("answer %d", i), answer)
	}

	history := reg.Session("s1").History()
	require.Len(t, history, n)
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("question %d", i+1), turn.Question)
		assert.Equal(t, fmt.Sprintf("answer %d", i+1), turn.Answer)
	}
}

func TestPromptContainsContextHistoryAndQuestion(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{"http://tesla": "Nikola Tesla was born in 1856 in Smiljan."}}
	gen := &fakeGenerator{answers: []string{"He was an inventor.", "In 1856."}}
	reg := newTestRegistry(t, ldr, gen)
	require.NoError(t, reg.LoadURL(context.Background(), "s1", "http://tesla"))

	_, err := reg.Ask(context.Background(), "s1", "Who is Nikola Tesla?")
	require.NoError(t, err)

	_, err = reg.Ask(context.Background(), "s1", "When was he born?")
	require.NoError(t, err)

	prompt := gen.lastPrompt()
	assert.Contains(t, prompt, "Nikola Tesla was born in 1856", "retrieved context missing")
	assert.Contains(t, prompt, "Human: Who is Nikola Tesla?", "prior question missing from history")
	assert.Contains(t, prompt, "Assistant: He was an inventor.", "prior answer missing from history")
	assert.Contains(t, prompt, "Question:\nWhen was he born?", "question not passed verbatim")
	assert.Contains(t, prompt, models.FallbackAnswer, "fallback instruction altered")
}

func TestGenerationFailureLeavesHistoryUntouched(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{"http://page": "Some page content here."}}
	gen := &fakeGenerator{}
	reg := newTestRegistry(t, ldr, gen)
	require.NoError(t, reg.LoadURL(context.Background(), "s1", "http://page"))

	_, err := reg.Ask(context.Background(), "s1", "first")
	require.NoError(t, err)

	gen.err = errors.New("model timeout")
	_, err = reg.Ask(context.Background(), "s1", "second")
	var genErr *models.GenerationError
	require.ErrorAs(t, err, &genErr)

	history := reg.Session("s1").History()
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Question)
}

func TestReingestionReplacesIndexAndResetsHistory(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{
		"http://a": "Content of the first page.",
		"http://b": "Content of the second page.",
	}}
	gen := &fakeGenerator{}
	reg := newTestRegistry(t, ldr, gen)

	require.NoError(t, reg.LoadURL(context.Background(), "s1", "http://a"))
	_, err := reg.Ask(context.Background(), "s1", "about a?")
	require.NoError(t, err)
	require.Len(t, reg.Session("s1").History(), 1)

	require.NoError(t, reg.LoadURL(context.Background(), "s1", "http://b"))
	assert.Empty(t, reg.Session("s1").History(), "history leaked across re-ingestion")

	_, err = reg.Ask(context.Background(), "s1", "about b?")
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "Content of the second page.")
	assert.NotContains(t, gen.lastPrompt(), "Content of the first page.")
}

func TestFailedReingestionKeepsExistingSession(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{"http://a": "Original page content."}}
	gen := &fakeGenerator{}
	reg := newTestRegistry(t, ldr, gen)

	require.NoError(t, reg.LoadURL(context.Background(), "s1", "http://a"))
	_, err := reg.Ask(context.Background(), "s1", "q1")
	require.NoError(t, err)

	err = reg.LoadURL(context.Background(), "s1", "http://broken")
	require.Error(t, err)

	history := reg.Session("s1").History()
	require.Len(t, history, 1, "failed re-ingestion must not touch the session")

	_, err = reg.Ask(context.Background(), "s1", "q2")
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "Original page content.")
}

// contentAwareGenerator answers with a marker naming which page's text the
// prompt carried, so tests can tell which index served each turn.
type contentAwareGenerator struct{}

func (contentAwareGenerator) Generate(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Alpha page"):
		return "from-alpha", nil
	case strings.Contains(prompt, "Beta page"):
		return "from-beta", nil
	}
	return "", errors.New("prompt carries no known context")
}

func TestReingestionRacingAsks(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{
		"http://a": "Alpha page text.",
		"http://b": "Beta page text.",
	}}
	splitter, err := chunker.NewSplitter(40, 8)
	require.NoError(t, err)
	reg := NewRegistry(ldr, splitter, &fakeEmbedder{}, contentAwareGenerator{}, config.RAGConfig{TopK: 8})
	require.NoError(t, reg.LoadURL(context.Background(), "s1", "http://a"))

	// Re-ingest while asks are in flight. Each turn must be answered and
	// recorded against a single index: answers from the old index may only
	// survive in the history that the swap discards.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := reg.Ask(context.Background(), "s1", fmt.Sprintf("question %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		assert.NoError(t, reg.LoadURL(context.Background(), "s1", "http://b"))
	}()
	close(start)
	wg.Wait()

	answer, err := reg.Ask(context.Background(), "s1", "final question")
	require.NoError(t, err)
	assert.Equal(t, "from-beta", answer)

	for _, turn := range reg.Session("s1").History() {
		assert.Equal(t, "from-beta", turn.Answer,
			"turn %q was answered from the replaced index", turn.Question)
	}
}

func TestSessionIsolation(t *testing.T) {
	ldr := &fakeLoader{pages: map[string]string{
		"http://a": "Alpha page text.",
		"http://b": "Beta page text.",
	}}
	reg := newTestRegistry(t, ldr, &fakeGenerator{})

	require.NoError(t, reg.LoadURL(context.Background(), "sa", "http://a"))
	require.NoError(t, reg.LoadURL(context.Background(), "sb", "http://b"))

	var wg sync.WaitGroup
	const rounds = 20
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Ask(context.Background(), "sa", fmt.Sprintf("a-%d", i))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Ask(context.Background(), "sb", fmt.Sprintf("b-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ha := reg.Session("sa").History()
	hb := reg.Session("sb").History()
	require.Len(t, ha, rounds)
	require.Len(t, hb, rounds)
	for _, turn := range ha {
		assert.True(t, strings.HasPrefix(turn.Question, "a-"), "foreign turn in session sa: %q", turn.Question)
	}
	for _, turn := range hb {
		assert.True(t, strings.HasPrefix(turn.Question, "b-"), "foreign turn in session sb: %q", turn.Question)
	}
}
