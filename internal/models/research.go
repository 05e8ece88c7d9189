package models

import "time"

// ResearchApproach selects the query-expansion and source-filter strategy.
type ResearchApproach string

const (
	ApproachBroad         ResearchApproach = "broad"
	ApproachFocused       ResearchApproach = "focused"
	ApproachAcademic      ResearchApproach = "academic"
	ApproachCurrentEvents ResearchApproach = "current_events"
	ApproachComparative   ResearchApproach = "comparative"
)

// ResearchRequest bounds one orchestrated research run.
type ResearchRequest struct {
	Topic                string           `json:"topic"`
	Approach             ResearchApproach `json:"approach"`
	MaxDepth             int              `json:"max_depth"`
	MaxURLs              int              `json:"max_urls"`
	TimeLimit            time.Duration    `json:"time_limit"`
	SourceTypes          []string         `json:"source_types,omitempty"`
	CredibilityThreshold float64          `json:"credibility_threshold"` // [0,1]
	OutputFormat         string           `json:"output_format,omitempty"`
}

// Finding is one scored source document with provenance.
type Finding struct {
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty"`
	Relevance   float64  `json:"relevance"`   // combined BM25/semantic, [0,1]
	Credibility float64  `json:"credibility"` // source heuristic, [0,1]
	Quotes      []string `json:"quotes,omitempty"`
	Cluster     int      `json:"cluster,omitempty"`
}

// Conflict flags findings whose claims appear contradictory.
type Conflict struct {
	Claim   string   `json:"claim"`
	Sources []string `json:"sources"`
	Detail  string   `json:"detail,omitempty"`
}

// ResearchMetrics reports budget consumption for a run.
type ResearchMetrics struct {
	QueriesExpanded int           `json:"queries_expanded"`
	SourcesFound    int           `json:"sources_found"`
	PagesFetched    int           `json:"pages_fetched"`
	PagesDiscarded  int           `json:"pages_discarded"`
	Duration        time.Duration `json:"duration"`
}

// ResearchResult is the deep_research tool payload. Truncated is set when a
// budget or the time limit cut the run short.
type ResearchResult struct {
	Topic     string          `json:"topic"`
	Summary   string          `json:"summary,omitempty"`
	Themes    []string        `json:"themes,omitempty"`
	Gaps      []string        `json:"gaps,omitempty"`
	Findings  []Finding       `json:"findings"`
	Conflicts []Conflict      `json:"conflicts,omitempty"`
	Metrics   ResearchMetrics `json:"metrics"`
	Truncated bool            `json:"truncated"`
}

// SearchResultItem is one entry returned by a SearchProvider.
type SearchResultItem struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}
