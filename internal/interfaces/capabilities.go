package interfaces

import (
	"context"

	"github.com/ternarybob/venator/internal/models"
)

// ContentExtractor turns fetched HTML into text, links, and metadata. The
// extraction algorithm itself is pluggable; the pipeline only depends on
// this contract.
type ContentExtractor interface {
	Extract(ctx context.Context, html []byte, sourceURL string) (*models.ExtractedContent, error)
	ExtractStructured(ctx context.Context, html []byte, selectors map[string]string) (map[string]interface{}, error)
}

// SemanticScorer scores topical relevance of a document against a query.
// Nil-able: callers fall back to lexical scoring when unavailable.
type SemanticScorer interface {
	Score(ctx context.Context, query, document string) (float64, error)
	ExpandQueries(ctx context.Context, topic string, approach models.ResearchApproach, k int) ([]string, error)
}

// Synthesizer produces a narrative summary from scored findings. Nil-able.
type Synthesizer interface {
	Synthesize(ctx context.Context, topic string, findings []models.Finding) (summary string, themes, gaps []string, err error)
}

// BrowserSession renders a URL in a real browser and returns the resulting
// HTML plus optional screenshots. Automation internals are out of scope.
type BrowserSession interface {
	Open(ctx context.Context, url string, actions []BrowserAction) (*RenderedPage, error)
	Close() error
}

// BrowserAction is a single scripted step executed before capture.
type BrowserAction struct {
	Type     string `json:"type"` // wait, click, scroll, fill, screenshot
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	Millis   int    `json:"millis,omitempty"`
}

// RenderedPage is the output of a browser session.
type RenderedPage struct {
	URL         string   `json:"url"`
	HTML        string   `json:"html"`
	StatusCode  int      `json:"status_code,omitempty"`
	Screenshots [][]byte `json:"-"`
	Title       string   `json:"title,omitempty"`
}

// SearchProvider answers web search queries. The default implementation
// ranks the locally indexed corpus; production deployments plug in a real
// engine. localization is a locale hint ("de-DE") providers may ignore.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int, site, localization string) ([]models.SearchResultItem, error)
}
