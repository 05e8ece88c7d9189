package tools

// Argument structs for every catalog tool. Decoding is strict: unknown
// fields are rejected, and validator tags enforce the documented ranges.

// FetchURLArgs parameterizes fetch_url.
type FetchURLArgs struct {
	URL          string            `json:"url" validate:"required"`
	Method       string            `json:"method,omitempty" validate:"omitempty,oneof=GET HEAD POST get head post"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	TimeoutMs    int               `json:"timeout_ms,omitempty" validate:"omitempty,min=100,max=120000"`
	MaxBytes     int64             `json:"max_bytes,omitempty" validate:"omitempty,min=1"`
	MaxRedirects int               `json:"max_redirects,omitempty" validate:"omitempty,min=0,max=20"`
	UseCache     *bool             `json:"use_cache,omitempty"`
}

// ExtractArgs covers extract_text, extract_links, extract_metadata, and
// extract_content: fetch (or reuse cache) then derive one artifact.
type ExtractArgs struct {
	URL      string `json:"url" validate:"required"`
	UseCache *bool  `json:"use_cache,omitempty"`
	Format   string `json:"format,omitempty" validate:"omitempty,oneof=text markdown"`
}

// ScrapeStructuredArgs parameterizes scrape_structured.
type ScrapeStructuredArgs struct {
	URL       string            `json:"url" validate:"required"`
	Selectors map[string]string `json:"selectors" validate:"required,min=1"`
	UseCache  *bool             `json:"use_cache,omitempty"`
}

// SearchWebArgs parameterizes search_web.
type SearchWebArgs struct {
	Query        string `json:"query" validate:"required"`
	Limit        int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Site         string `json:"site,omitempty"`
	Localization string `json:"localization,omitempty"`
}

// CrawlDeepArgs parameterizes crawl_deep and (bounded) map_site.
type CrawlDeepArgs struct {
	URL             string   `json:"url" validate:"required"`
	MaxDepth        int      `json:"max_depth,omitempty" validate:"omitempty,min=1,max=10"`
	MaxPages        int      `json:"max_pages,omitempty" validate:"omitempty,min=1,max=5000"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	FollowExternal  bool     `json:"follow_external,omitempty"`
	RespectRobots   *bool    `json:"respect_robots,omitempty"`
	TimeLimitMs     int      `json:"time_limit_ms,omitempty" validate:"omitempty,min=1000,max=1800000"`
	Concurrency     int      `json:"concurrency,omitempty" validate:"omitempty,min=1,max=32"`
	Async           bool     `json:"async,omitempty"`
}

// MapSiteArgs parameterizes map_site.
type MapSiteArgs struct {
	URL           string `json:"url" validate:"required"`
	MaxURLs       int    `json:"max_urls,omitempty" validate:"omitempty,min=1,max=5000"`
	MaxDepth      int    `json:"max_depth,omitempty" validate:"omitempty,min=1,max=10"`
	RespectRobots *bool  `json:"respect_robots,omitempty"`
}

// BatchScrapeArgs parameterizes batch_scrape.
type BatchScrapeArgs struct {
	URLs     []string `json:"urls" validate:"required,min=1,max=500,dive,required"`
	Format   string   `json:"format,omitempty" validate:"omitempty,oneof=text markdown html"`
	Async    bool     `json:"async,omitempty"`
	Priority string   `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`
	UseCache *bool    `json:"use_cache,omitempty"`
}

// BrowserActionArgs is one scripted step for scrape_with_actions.
type BrowserActionArgs struct {
	Type     string `json:"type" validate:"required,oneof=wait click scroll fill screenshot"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	Millis   int    `json:"millis,omitempty" validate:"omitempty,min=0,max=60000"`
}

// ScrapeWithActionsArgs parameterizes scrape_with_actions.
type ScrapeWithActionsArgs struct {
	URL     string              `json:"url" validate:"required"`
	Actions []BrowserActionArgs `json:"actions,omitempty" validate:"omitempty,max=25,dive"`
	Format  string              `json:"format,omitempty" validate:"omitempty,oneof=text markdown html"`
}

// DeepResearchArgs parameterizes deep_research.
type DeepResearchArgs struct {
	Topic                string   `json:"topic" validate:"required"`
	Approach             string   `json:"approach,omitempty" validate:"omitempty,oneof=broad focused academic current_events comparative"`
	MaxDepth             int      `json:"max_depth,omitempty" validate:"omitempty,min=1,max=5"`
	MaxURLs              int      `json:"max_urls,omitempty" validate:"omitempty,min=1,max=1000"`
	TimeLimitMs          int      `json:"time_limit_ms,omitempty" validate:"omitempty,min=5000,max=600000"`
	SourceTypes          []string `json:"source_types,omitempty"`
	CredibilityThreshold float64  `json:"credibility_threshold,omitempty" validate:"omitempty,min=0,max=1"`
	Async                bool     `json:"async,omitempty"`
}

// TrackChangesArgs parameterizes track_changes; Operation selects the
// sub-operation and the remaining fields apply where relevant.
type TrackChangesArgs struct {
	Operation        string   `json:"operation" validate:"required,oneof=create_baseline compare list_history list_snapshots get_snapshot delete_snapshot create_alert_rule list_alert_rules start_monitor stop_monitor list_monitors trend dashboard export"`
	URL              string   `json:"url,omitempty"`
	SnapshotID       string   `json:"snapshot_id,omitempty"`
	Granularity      string   `json:"granularity,omitempty" validate:"omitempty,oneof=page section element text"`
	Selector         string   `json:"selector,omitempty"`
	ExcludeSelectors []string `json:"exclude_selectors,omitempty"`
	MinSeverity      string   `json:"min_severity,omitempty" validate:"omitempty,oneof=none minor moderate major critical"`
	TargetURL        string   `json:"target_url,omitempty"`
	MonitorID        string   `json:"monitor_id,omitempty"`
	IntervalMs       int      `json:"interval_ms,omitempty" validate:"omitempty,min=60000"`
	WindowMs         int      `json:"window_ms,omitempty" validate:"omitempty,min=0"`
	Format           string   `json:"format,omitempty" validate:"omitempty,oneof=json csv yaml"`
	Limit            int      `json:"limit,omitempty" validate:"omitempty,min=1,max=1000"`
}

// JobArgs covers get_job_status, get_job_result, and cancel_job.
type JobArgs struct {
	JobID string `json:"job_id" validate:"required"`
}

// ListJobsArgs parameterizes list_jobs.
type ListJobsArgs struct {
	Status string `json:"status,omitempty" validate:"omitempty,oneof=queued running completed failed cancelled expired"`
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}
