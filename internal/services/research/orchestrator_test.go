package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/extractor"
	"github.com/ternarybob/venator/internal/services/fetcher"
	"github.com/ternarybob/venator/internal/services/metrics"
	"github.com/ternarybob/venator/internal/services/ratelimit"
	"github.com/ternarybob/venator/internal/services/urlguard"
)

// fakeProvider returns the same canned items for every query.
type fakeProvider struct {
	items []models.SearchResultItem
}

func (p *fakeProvider) Search(ctx context.Context, query string, limit int, site, localization string) ([]models.SearchResultItem, error) {
	return p.items, nil
}

func newTestOrchestrator(t *testing.T, provider *fakeProvider) *Orchestrator {
	t.Helper()
	logger := arbor.NewLogger()
	config := common.DefaultConfig()
	config.SSRF.BlockPrivate = false // httptest listens on loopback
	config.RateLimit.RPS = 1000
	config.RateLimit.Burst = 1000
	config.Fetch.BreakerTrips = 1000

	guard := urlguard.New(config.SSRF, logger)
	limiter := ratelimit.New(config.RateLimit, logger)
	f := fetcher.NewService(config.Fetch, guard, limiter, metrics.New(), logger)
	ex := extractor.NewService(logger)
	return NewOrchestrator(config.Research, f, ex, provider, nil, nil, logger)
}

func articlePage(title, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body><article><h1>%s</h1><p>%s</p></article></body></html>", title, title, body)
	}
}

func testRequest(topic string) models.ResearchRequest {
	return models.ResearchRequest{
		Topic:     topic,
		Approach:  models.ApproachBroad,
		MaxURLs:   10,
		TimeLimit: 30 * time.Second,
	}
}

func searchItems(urls ...string) []models.SearchResultItem {
	items := make([]models.SearchResultItem, 0, len(urls))
	for _, u := range urls {
		items = append(items, models.SearchResultItem{URL: u})
	}
	return items
}

func TestRunRanksTopicRichSourcesFirst(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/strong", articlePage(
		"Sloth metabolism explained",
		"Sloth metabolism runs slowly. The metabolism of the sloth adapts to a low-energy canopy diet, and sloth metabolism studies confirm the slow rates."))
	mux.HandleFunc("/weak", articlePage(
		"Rainforest canopy life",
		"Canopy ecosystems host many species. One study briefly notes sloth metabolism among other topics like epiphytes and insects."))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeProvider{items: searchItems(srv.URL+"/strong", srv.URL+"/weak")}
	o := newTestOrchestrator(t, provider)

	var lastProgress float64
	result, err := o.Run(context.Background(), testRequest("sloth metabolism"), func(f float64) { lastProgress = f })
	require.NoError(t, err)

	require.Len(t, result.Findings, 2)
	assert.Contains(t, result.Findings[0].URL, "/strong")
	assert.Greater(t, result.Findings[0].Relevance, result.Findings[1].Relevance)
	for _, f := range result.Findings {
		assert.Greater(t, f.Relevance, 0.0)
		assert.Greater(t, f.Credibility, 0.0)
		assert.NotEmpty(t, f.Excerpt)
	}

	assert.Equal(t, 5, result.Metrics.QueriesExpanded)
	assert.Equal(t, 2, result.Metrics.SourcesFound)
	assert.Equal(t, 2, result.Metrics.PagesFetched)
	assert.NotEmpty(t, result.Summary, "lexical fallback still produces a summary")
	assert.Equal(t, float64(1), lastProgress)
	assert.False(t, result.Truncated)
}

func TestRunDiscardsIrrelevantSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/on-topic", articlePage(
		"Tidal power turbines",
		"Tidal power turbines convert predictable currents into electricity. Tidal power output varies with lunar cycles."))
	mux.HandleFunc("/off-topic", articlePage(
		"Sourdough starters",
		"Feeding schedules and hydration ratios determine how a starter culture behaves in a home kitchen."))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeProvider{items: searchItems(srv.URL+"/on-topic", srv.URL+"/off-topic")}
	o := newTestOrchestrator(t, provider)

	result, err := o.Run(context.Background(), testRequest("tidal power"), nil)
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	assert.Contains(t, result.Findings[0].URL, "/on-topic")
	assert.Equal(t, 1, result.Metrics.PagesDiscarded)
}

func TestRunCredibilityThresholdFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", articlePage("Solar grid storage", "Solar grid storage balances intermittent generation."))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeProvider{items: searchItems(srv.URL + "/page")}
	o := newTestOrchestrator(t, provider)

	req := testRequest("solar grid storage")
	req.CredibilityThreshold = 0.99
	result, err := o.Run(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Findings, "loopback sources sit well below a 0.99 threshold")
	assert.Equal(t, 1, result.Metrics.PagesDiscarded)
}

func TestRunSourceTypeFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", articlePage("Budget process", "The annual budget process involves several committees."))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeProvider{items: searchItems(srv.URL + "/page")}
	o := newTestOrchestrator(t, provider)

	req := testRequest("budget process")
	req.SourceTypes = []string{"government"}
	result, err := o.Run(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Zero(t, result.Metrics.SourcesFound, "non-government hosts never enter the candidate set")
	assert.Empty(t, result.Findings)
}

func TestRunClustersNearDuplicates(t *testing.T) {
	body := "Glacier melt rates accelerated over the last decade. Glacier melt contributes directly to sea level rise measured by satellite altimetry."
	mux := http.NewServeMux()
	mux.HandleFunc("/original", articlePage("Glacier melt report", body))
	mux.HandleFunc("/mirror", articlePage("Glacier melt report", body))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeProvider{items: searchItems(srv.URL+"/original", srv.URL+"/mirror")}
	o := newTestOrchestrator(t, provider)

	result, err := o.Run(context.Background(), testRequest("glacier melt"), nil)
	require.NoError(t, err)

	assert.Len(t, result.Findings, 1, "mirrored content collapses to one finding")
	assert.GreaterOrEqual(t, result.Metrics.PagesDiscarded, 1)
}

func TestRunSurvivesDeadSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alive", articlePage("Desalination costs", "Desalination costs fall as membrane efficiency improves."))
	mux.HandleFunc("/dead", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeProvider{items: searchItems(srv.URL+"/alive", srv.URL+"/dead")}
	o := newTestOrchestrator(t, provider)

	result, err := o.Run(context.Background(), testRequest("desalination costs"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Metrics.PagesFetched)
	require.Len(t, result.Findings, 1)
	assert.Contains(t, result.Findings[0].URL, "/alive")
}

func TestRunFollowsLinksToDepth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Coral bleaching overview</title></head><body><article>`+
			`<h1>Coral bleaching overview</h1><p>Coral bleaching events are summarized here.</p>`+
			`<p><a href="/leaf">full report</a></p></article></body></html>`)
	})
	mux.HandleFunc("/leaf", articlePage(
		"Coral bleaching drivers",
		"Coral bleaching accelerates under sustained heat stress. Coral bleaching recovery depends on cooler seasons and symbiont shuffling."))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeProvider{items: searchItems(srv.URL + "/hub")}
	o := newTestOrchestrator(t, provider)

	// Depth 1 stops at the gathered candidates.
	shallow, err := o.Run(context.Background(), testRequest("coral bleaching"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, shallow.Metrics.PagesFetched)

	// Depth 2 follows the hub's links to the report.
	req := testRequest("coral bleaching")
	req.MaxDepth = 2
	deep, err := o.Run(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, deep.Metrics.PagesFetched)

	var urls []string
	for _, f := range deep.Findings {
		urls = append(urls, f.URL)
	}
	assert.Contains(t, urls, srv.URL+"/leaf")
}

func TestRunTimeLimitTruncates(t *testing.T) {
	provider := &fakeProvider{}
	o := newTestOrchestrator(t, provider)

	req := testRequest("anything")
	req.TimeLimit = time.Nanosecond
	result, err := o.Run(context.Background(), req, nil)
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Empty(t, result.Findings)
}

func TestPullQuotes(t *testing.T) {
	text := "Tidal power is predictable. Bread rises overnight. Turbines capture tidal power from currents. Nothing else here."
	quotes := pullQuotes(text, "tidal power")
	require.NotEmpty(t, quotes)
	assert.LessOrEqual(t, len(quotes), maxQuotes)
	for _, q := range quotes {
		assert.Contains(t, q, "tidal")
	}
}

func TestDetectConflictsFlagsNegationDisagreement(t *testing.T) {
	agree := "The museum charges visitors an entrance fee during summer weekends"
	disagree := "The museum does not charge visitors an entrance fee during summer weekends"

	sources := []source{
		{url: "https://a.example.com/", content: &models.ExtractedContent{Text: agree + "."}},
		{url: "https://b.example.com/", content: &models.ExtractedContent{Text: disagree + "."}},
	}
	findings := []models.Finding{
		{URL: "https://a.example.com/"},
		{URL: "https://b.example.com/"},
	}

	conflicts := detectConflicts(findings, sources)
	require.Len(t, conflicts, 1)
	assert.ElementsMatch(t, []string{"https://a.example.com/", "https://b.example.com/"}, conflicts[0].Sources)
}
