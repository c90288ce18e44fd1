package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"

	"webpage-rag/internal/models"
)

// URLLoader fetches a web page and extracts its visible text.
type URLLoader struct {
	client *http.Client
}

func NewURLLoader(timeout time.Duration) *URLLoader {
	return &URLLoader{client: &http.Client{Timeout: timeout}}
}

// Fetch retrieves the URL and strips the HTML down to plain text. Network and
// HTTP-status failures come back as *models.FetchError; a page that yields no
// text (empty body, login wall rendered client-side) is models.ErrEmptyContent.
func (l *URLLoader) Fetch(ctx context.Context, url string) (models.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Document{}, &models.FetchError{URL: url, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return models.Document{}, &models.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Document{}, &models.FetchError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	docs, err := documentloaders.NewHTML(resp.Body).Load(ctx)
	if err != nil {
		return models.Document{}, &models.FetchError{URL: url, Err: err}
	}

	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.PageContent)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return models.Document{}, models.ErrEmptyContent
	}

	log.Debug().Str("url", url).Int("chars", len(text)).Msg("Fetched page content")
	return models.Document{Content: text, Source: url}, nil
}
