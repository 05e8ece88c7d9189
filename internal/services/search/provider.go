// Package search provides the default SearchProvider: BM25 ranking over the
// locally crawled corpus. Deployments with a real engine swap the interface.
package search

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/ranker"
)

const snippetRunes = 240

// Provider indexes documents the pipeline has seen and answers queries from
// that corpus. Implements interfaces.SearchProvider.
type Provider struct {
	logger arbor.ILogger

	mu    sync.RWMutex
	docs  []ranker.Document
	seen  map[string]int // URL -> docs index
	index *ranker.Index  // rebuilt lazily after writes
}

// NewProvider creates an empty corpus.
func NewProvider(logger arbor.ILogger) *Provider {
	return &Provider{logger: logger, seen: make(map[string]int)}
}

// AddDocument upserts a document into the corpus by URL.
func (p *Provider) AddDocument(doc ranker.Document) {
	if doc.URL == "" {
		return
	}
	if doc.ID == "" {
		doc.ID = doc.URL
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.seen[doc.URL]; ok {
		p.docs[i] = doc
	} else {
		p.seen[doc.URL] = len(p.docs)
		p.docs = append(p.docs, doc)
	}
	p.index = nil
}

// Size reports the corpus size.
func (p *Provider) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs)
}

// Search ranks the corpus against the query. A non-empty site restricts
// results to hosts matching it. The locale hint is accepted for engine
// parity; the local corpus has no locale partitions.
func (p *Provider) Search(ctx context.Context, query string, limit int, site, localization string) ([]models.SearchResultItem, error) {
	if limit <= 0 {
		limit = 10
	}
	if localization != "" {
		p.logger.Debug().Str("localization", localization).Msg("Locale hint ignored by local corpus")
	}

	p.mu.Lock()
	if p.index == nil {
		p.index = ranker.NewIndex(p.docs)
	}
	idx := p.index
	p.mu.Unlock()

	// Over-fetch so a site filter still fills the limit.
	scored := idx.Search(query, limit*4)

	items := make([]models.SearchResultItem, 0, limit)
	for _, s := range scored {
		if site != "" && !matchSite(s.Document.URL, site) {
			continue
		}
		items = append(items, models.SearchResultItem{
			URL:     s.Document.URL,
			Title:   s.Document.Title,
			Snippet: snippet(s.Document.Body),
			Score:   s.Score,
		})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func matchSite(rawURL, site string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	site = strings.ToLower(strings.TrimPrefix(site, "www."))
	return host == site || strings.HasSuffix(host, "."+site)
}

func snippet(body string) string {
	runes := []rune(body)
	if len(runes) <= snippetRunes {
		return body
	}
	return string(runes[:snippetRunes]) + "..."
}
