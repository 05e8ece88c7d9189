package models

import "time"

// CrawlConfig bounds a single crawl session. Fields mirror the crawl_deep
// tool parameters with server-side defaults applied.
type CrawlConfig struct {
	MaxDepth        int           `json:"max_depth"` // 1..10
	MaxPages        int           `json:"max_pages"` // >= 1
	IncludePatterns []string      `json:"include_patterns,omitempty"`
	ExcludePatterns []string      `json:"exclude_patterns,omitempty"`
	FollowExternal  bool          `json:"follow_external"`
	RespectRobots   bool          `json:"respect_robots"`
	TimeLimit       time.Duration `json:"time_limit,omitempty"`
	Concurrency     int           `json:"concurrency,omitempty"`
}

// CrawlPage is the per-URL result recorded during a crawl session.
type CrawlPage struct {
	URL        string        `json:"url"`
	Depth      int           `json:"depth"`
	Parent     string        `json:"parent,omitempty"`
	StatusCode int           `json:"status_code"`
	Title      string        `json:"title,omitempty"`
	Text       string        `json:"text,omitempty"`
	Links      []string      `json:"links,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
}

// CrawlResult is the aggregate outcome of a crawl session.
type CrawlResult struct {
	Seed       string        `json:"seed"`
	Pages      []CrawlPage   `json:"pages"`
	Visited    int           `json:"visited"`
	Failed     int           `json:"failed"`
	MaxDepth   int           `json:"max_depth_reached"`
	Truncated  bool          `json:"truncated"`
	StopReason string        `json:"stop_reason,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// SiteMap is the map_site tool payload: discovered URLs plus any sitemap
// entries advertised by robots.txt.
type SiteMap struct {
	Root        string   `json:"root"`
	URLs        []string `json:"urls"`
	SitemapURLs []string `json:"sitemap_urls,omitempty"`
	Truncated   bool     `json:"truncated"`
}
