package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createFetchURLTool returns the fetch_url tool definition
func createFetchURLTool() mcp.Tool {
	return mcp.NewTool("fetch_url",
		mcp.WithDescription("Fetch a URL through the guarded pipeline: SSRF validation, rate limiting, retries, caching"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL to fetch"),
		),
		mcp.WithString("method",
			mcp.Description("HTTP method: GET (default), HEAD, or POST"),
		),
		mcp.WithObject("headers",
			mcp.Description("Extra request headers (allowlisted names only)"),
		),
		mcp.WithString("body",
			mcp.Description("Request body for POST"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Per-attempt timeout in milliseconds (100..120000)"),
		),
		mcp.WithNumber("max_bytes",
			mcp.Description("Response size cap in bytes"),
		),
		mcp.WithNumber("max_redirects",
			mcp.Description("Redirect budget (0..20, default 5)"),
		),
		mcp.WithBoolean("use_cache",
			mcp.Description("Serve from cache when fresh (default true)"),
		),
	)
}

// createExtractTextTool returns the extract_text tool definition
func createExtractTextTool() mcp.Tool {
	return mcp.NewTool("extract_text",
		mcp.WithDescription("Fetch a page and return its main text content, boilerplate stripped"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithBoolean("use_cache", mcp.Description("Serve from cache when fresh (default true)")),
	)
}

// createExtractLinksTool returns the extract_links tool definition
func createExtractLinksTool() mcp.Tool {
	return mcp.NewTool("extract_links",
		mcp.WithDescription("Fetch a page and return its absolute outbound links"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithBoolean("use_cache", mcp.Description("Serve from cache when fresh (default true)")),
	)
}

// createExtractMetadataTool returns the extract_metadata tool definition
func createExtractMetadataTool() mcp.Tool {
	return mcp.NewTool("extract_metadata",
		mcp.WithDescription("Fetch a page and return title, description, OpenGraph, and Twitter card metadata"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithBoolean("use_cache", mcp.Description("Serve from cache when fresh (default true)")),
	)
}

// createExtractContentTool returns the extract_content tool definition
func createExtractContentTool() mcp.Tool {
	return mcp.NewTool("extract_content",
		mcp.WithDescription("Fetch a page and return the full extraction: text or markdown, headings, links, metadata"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithString("format", mcp.Description("Content format: text (default) or markdown")),
		mcp.WithBoolean("use_cache", mcp.Description("Serve from cache when fresh (default true)")),
	)
}

// createScrapeStructuredTool returns the scrape_structured tool definition
func createScrapeStructuredTool() mcp.Tool {
	return mcp.NewTool("scrape_structured",
		mcp.WithDescription("Fetch a page and extract named fields via CSS selectors; 'selector@attr' captures an attribute"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithObject("selectors",
			mcp.Required(),
			mcp.Description("Field name to CSS selector mapping"),
		),
		mcp.WithBoolean("use_cache", mcp.Description("Serve from cache when fresh (default true)")),
	)
}

// createSearchWebTool returns the search_web tool definition
func createSearchWebTool() mcp.Tool {
	return mcp.NewTool("search_web",
		mcp.WithDescription("Search the locally indexed corpus with BM25 ranking"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10, max 100)")),
		mcp.WithString("site", mcp.Description("Restrict results to this site")),
		mcp.WithString("localization", mcp.Description("Locale hint, e.g. de-DE")),
	)
}

// createCrawlDeepTool returns the crawl_deep tool definition
func createCrawlDeepTool() mcp.Tool {
	return mcp.NewTool("crawl_deep",
		mcp.WithDescription("Breadth-first crawl from a seed URL with depth, page, and time budgets"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Seed URL")),
		mcp.WithNumber("max_depth", mcp.Description("Maximum link depth (1..10, default 5)")),
		mcp.WithNumber("max_pages", mcp.Description("Maximum pages to fetch (default 100)")),
		mcp.WithArray("include_patterns",
			mcp.WithStringItems(),
			mcp.Description("Only follow URLs matching one of these patterns"),
		),
		mcp.WithArray("exclude_patterns",
			mcp.WithStringItems(),
			mcp.Description("Never follow URLs matching one of these patterns"),
		),
		mcp.WithBoolean("follow_external", mcp.Description("Follow links off the seed's registrable domain")),
		mcp.WithBoolean("respect_robots", mcp.Description("Honor robots.txt (default true)")),
		mcp.WithNumber("time_limit_ms", mcp.Description("Wall-clock budget in milliseconds")),
		mcp.WithNumber("concurrency", mcp.Description("Parallel fetches within a depth level (1..32)")),
		mcp.WithBoolean("async", mcp.Description("Run as a background job and return a job id")),
	)
}

// createMapSiteTool returns the map_site tool definition
func createMapSiteTool() mcp.Tool {
	return mcp.NewTool("map_site",
		mcp.WithDescription("Discover a site's URL inventory via shallow crawl plus robots.txt sitemap entries"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Site root URL")),
		mcp.WithNumber("max_urls", mcp.Description("Maximum URLs to return (default 100)")),
		mcp.WithNumber("max_depth", mcp.Description("Maximum crawl depth (default 3)")),
		mcp.WithBoolean("respect_robots", mcp.Description("Honor robots.txt (default true)")),
	)
}

// createBatchScrapeTool returns the batch_scrape tool definition
func createBatchScrapeTool() mcp.Tool {
	return mcp.NewTool("batch_scrape",
		mcp.WithDescription("Fetch and extract a list of URLs; sync for small batches or async via the job manager"),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("URLs to scrape (max 500)"),
		),
		mcp.WithString("format", mcp.Description("Content format: text (default), markdown, or html")),
		mcp.WithBoolean("async", mcp.Description("Run as a background job and return a job id")),
		mcp.WithString("priority", mcp.Description("Job priority: low, normal (default), or high")),
		mcp.WithBoolean("use_cache", mcp.Description("Serve from cache when fresh (default true)")),
	)
}

// createScrapeWithActionsTool returns the scrape_with_actions tool definition
func createScrapeWithActionsTool() mcp.Tool {
	return mcp.NewTool("scrape_with_actions",
		mcp.WithDescription("Render a page in a headless browser, run scripted actions, and extract the result"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithArray("actions",
			mcp.Description("Scripted steps: wait, click, scroll, fill, screenshot"),
		),
		mcp.WithString("format", mcp.Description("Content format: text (default), markdown, or html")),
	)
}

// createDeepResearchTool returns the deep_research tool definition
func createDeepResearchTool() mcp.Tool {
	return mcp.NewTool("deep_research",
		mcp.WithDescription("Orchestrated topic research: query expansion, source gathering, scoring, dedup, synthesis"),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Research topic")),
		mcp.WithString("approach", mcp.Description("Strategy: broad (default), focused, academic, current_events, comparative")),
		mcp.WithNumber("max_depth", mcp.Description("Link-following depth budget (1..5)")),
		mcp.WithNumber("max_urls", mcp.Description("Source URL budget (default 1000)")),
		mcp.WithNumber("time_limit_ms", mcp.Description("Wall-clock budget in milliseconds (default 180000)")),
		mcp.WithArray("source_types",
			mcp.WithStringItems(),
			mcp.Description("Source filters: government, academic, reference, code, any"),
		),
		mcp.WithNumber("credibility_threshold", mcp.Description("Minimum source credibility (0..1)")),
		mcp.WithBoolean("async", mcp.Description("Run as a background job and return a job id")),
	)
}

// createTrackChangesTool returns the track_changes tool definition
func createTrackChangesTool() mcp.Tool {
	return mcp.NewTool("track_changes",
		mcp.WithDescription("Change tracking: baselines, comparisons, history, alert rules, monitors, trends, export"),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("One of: create_baseline, compare, list_history, list_snapshots, get_snapshot, delete_snapshot, create_alert_rule, list_alert_rules, start_monitor, stop_monitor, list_monitors, trend, dashboard, export"),
		),
		mcp.WithString("url", mcp.Description("Tracked URL (most operations)")),
		mcp.WithString("snapshot_id", mcp.Description("Snapshot id (get_snapshot, delete_snapshot)")),
		mcp.WithString("granularity", mcp.Description("Comparison unit: page (default), section, element, text")),
		mcp.WithString("selector", mcp.Description("CSS selector for element granularity")),
		mcp.WithArray("exclude_selectors",
			mcp.WithStringItems(),
			mcp.Description("Selectors stripped before comparison"),
		),
		mcp.WithString("min_severity", mcp.Description("Alert rule threshold: minor, moderate, major, critical")),
		mcp.WithString("target_url", mcp.Description("Webhook target for create_alert_rule")),
		mcp.WithString("monitor_id", mcp.Description("Monitor id (stop_monitor)")),
		mcp.WithNumber("interval_ms", mcp.Description("Monitor interval in milliseconds (min 60000)")),
		mcp.WithNumber("window_ms", mcp.Description("Trend window in milliseconds (0 = all history)")),
		mcp.WithString("format", mcp.Description("Export format: json (default), csv, yaml")),
		mcp.WithNumber("limit", mcp.Description("Record limit for history and export")),
	)
}

// createGetJobStatusTool returns the get_job_status tool definition
func createGetJobStatusTool() mcp.Tool {
	return mcp.NewTool("get_job_status",
		mcp.WithDescription("Report an async job's status and progress"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id (format: job_{hex})")),
	)
}

// createGetJobResultTool returns the get_job_result tool definition
func createGetJobResultTool() mcp.Tool {
	return mcp.NewTool("get_job_result",
		mcp.WithDescription("Return a completed async job's result payload"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id (format: job_{hex})")),
	)
}

// createCancelJobTool returns the cancel_job tool definition
func createCancelJobTool() mcp.Tool {
	return mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a queued or running async job; terminal jobs are unaffected"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id (format: job_{hex})")),
	)
}

// createListJobsTool returns the list_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List async jobs, optionally filtered by status"),
		mcp.WithString("status", mcp.Description("Filter: queued, running, completed, failed, cancelled, expired")),
		mcp.WithNumber("limit", mcp.Description("Maximum jobs to return (default 50)")),
	)
}
