package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/cache"
	"github.com/ternarybob/venator/internal/services/changes"
	"github.com/ternarybob/venator/internal/services/crawler"
	"github.com/ternarybob/venator/internal/services/fetcher"
	"github.com/ternarybob/venator/internal/services/jobs"
	"github.com/ternarybob/venator/internal/services/ranker"
	"github.com/ternarybob/venator/internal/services/research"
	"github.com/ternarybob/venator/internal/services/search"
	"github.com/ternarybob/venator/internal/services/tools"
	"github.com/ternarybob/venator/internal/services/urlguard"
)

// bodyLimit caps the response body carried inline in a tool envelope.
const bodyLimit = 2 << 20

// app aggregates the wired pipeline services behind the tool handlers.
type app struct {
	config    *common.Config
	logger    arbor.ILogger
	guard     *urlguard.Guard
	fetch     *fetcher.Service
	cache     *cache.Service
	jobs      *jobs.Manager
	crawler   *crawler.Service
	tracker   *changes.Tracker
	research  *research.Orchestrator
	extractor interfaces.ContentExtractor
	browser   interfaces.BrowserSession
	provider  *search.Provider
	tools     *tools.Dispatcher
}

// mcpHandler bridges an MCP call into the dispatcher: raw arguments in,
// JSON envelope out. Tool failures are envelopes, never transport errors.
func mcpHandler(a *app, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(request.GetArguments())
		if err != nil {
			raw = json.RawMessage("{}")
		}
		return formatEnvelope(a.tools.Dispatch(ctx, name, raw)), nil
	}
}

// registerTools binds every catalog tool to both the dispatcher and the
// MCP server.
func registerTools(a *app, mcpServer *server.MCPServer) {
	catalog := []struct {
		tool    mcp.Tool
		handler tools.Handler
	}{
		{createFetchURLTool(), a.handleFetchURL},
		{createExtractTextTool(), a.handleExtractText},
		{createExtractLinksTool(), a.handleExtractLinks},
		{createExtractMetadataTool(), a.handleExtractMetadata},
		{createExtractContentTool(), a.handleExtractContent},
		{createScrapeStructuredTool(), a.handleScrapeStructured},
		{createSearchWebTool(), a.handleSearchWeb},
		{createCrawlDeepTool(), a.handleCrawlDeep},
		{createMapSiteTool(), a.handleMapSite},
		{createBatchScrapeTool(), a.handleBatchScrape},
		{createScrapeWithActionsTool(), a.handleScrapeWithActions},
		{createDeepResearchTool(), a.handleDeepResearch},
		{createTrackChangesTool(), a.handleTrackChanges},
		{createGetJobStatusTool(), a.handleGetJobStatus},
		{createGetJobResultTool(), a.handleGetJobResult},
		{createCancelJobTool(), a.handleCancelJob},
		{createListJobsTool(), a.handleListJobs},
	}

	for _, entry := range catalog {
		a.tools.Register(entry.tool.Name, entry.handler)
		mcpServer.AddTool(entry.tool, mcpHandler(a, entry.tool.Name))
	}
}

// fetchCached is the shared fetch path: cache lookup keyed by fingerprint,
// fetch-through on miss, write-back on success.
func (a *app) fetchCached(ctx context.Context, rawURL string, policy fetcher.Policy, useCache bool) (*models.Response, models.Fingerprint, error) {
	u, err := a.guard.Canonicalize(rawURL)
	if err != nil {
		return nil, "", err
	}
	method := strings.ToUpper(policy.Method)
	if method == "" {
		method = "GET"
	}
	fp := models.NewFingerprint(method, u, policy.Body, nil)

	if useCache {
		if entry, ok := a.cache.Get(ctx, fp); ok {
			resp := *entry.Response
			resp.FromCache = true
			return &resp, fp, nil
		}
	}

	resp, err := a.fetch.Fetch(ctx, rawURL, policy)
	if err != nil {
		return nil, fp, err
	}
	a.cache.Put(ctx, fp, resp)
	return resp, fp, nil
}

// index adds extracted content to the local search corpus.
func (a *app) index(url string, content *models.ExtractedContent) {
	a.provider.AddDocument(ranker.Document{
		ID:       url,
		URL:      url,
		Title:    content.Title,
		Headings: content.Headings,
		Body:     content.Text,
	})
}

func (a *app) defaultPolicy() fetcher.Policy {
	policy := fetcher.DefaultPolicy()
	policy.Timeout = a.config.FetchTimeout()
	policy.TotalTimeout = time.Duration(a.config.Fetch.TotalTimeoutMs) * time.Millisecond
	policy.MaxBytes = a.config.Fetch.MaxBytes
	policy.MaxRedirects = a.config.Fetch.MaxRedirects
	return policy
}

func useCache(flag *bool) bool {
	return flag == nil || *flag
}

// fetchResult is the fetch_url payload.
type fetchResult struct {
	URL           string            `json:"url"`
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          string            `json:"body,omitempty"`
	BodyTruncated bool              `json:"body_truncated,omitempty"`
	FromCache     bool              `json:"from_cache"`
	RedirectHops  int               `json:"redirect_hops"`
	DurationMs    int64             `json:"duration_ms"`
}

func (r *fetchResult) WasTruncated() bool { return r.BodyTruncated }

func (a *app) handleFetchURL(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.FetchURLArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}

	policy := a.defaultPolicy()
	if args.Method != "" {
		policy.Method = strings.ToUpper(args.Method)
	}
	if len(args.Headers) > 0 {
		policy.Headers = args.Headers
	}
	if args.Body != "" {
		policy.Body = []byte(args.Body)
	}
	if args.TimeoutMs > 0 {
		policy.Timeout = time.Duration(args.TimeoutMs) * time.Millisecond
	}
	if args.MaxBytes > 0 && args.MaxBytes < policy.MaxBytes {
		policy.MaxBytes = args.MaxBytes
	}
	if args.MaxRedirects > 0 {
		policy.MaxRedirects = args.MaxRedirects
	}

	resp, _, err := a.fetchCached(ctx, args.URL, policy, useCache(args.UseCache) && policy.Method != "POST")
	if err != nil {
		return nil, err
	}

	result := &fetchResult{
		URL:          resp.URL,
		StatusCode:   resp.StatusCode,
		Headers:      resp.Headers,
		FromCache:    resp.FromCache,
		RedirectHops: resp.RedirectHops,
		DurationMs:   resp.FetchDuration.Milliseconds(),
	}
	if len(resp.Body) > bodyLimit {
		result.Body = string(resp.Body[:bodyLimit])
		result.BodyTruncated = true
	} else {
		result.Body = string(resp.Body)
	}
	return result, nil
}

// extract runs the shared fetch+extract path for the extract_* tools.
func (a *app) extract(ctx context.Context, url string, cached *bool) (*models.ExtractedContent, models.Fingerprint, error) {
	resp, fp, err := a.fetchCached(ctx, url, a.defaultPolicy(), useCache(cached))
	if err != nil {
		return nil, fp, err
	}
	content, err := a.extractor.Extract(ctx, resp.Body, resp.URL)
	if err != nil {
		return nil, fp, err
	}
	a.index(resp.URL, content)
	return content, fp, nil
}

func (a *app) handleExtractText(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.ExtractArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	content, fp, err := a.extract(ctx, args.URL, args.UseCache)
	if err != nil {
		return nil, err
	}
	a.cache.PutArtifact(ctx, fp, models.ArtifactText, []byte(content.Text))
	return map[string]interface{}{
		"url":   args.URL,
		"title": content.Title,
		"text":  content.Text,
	}, nil
}

func (a *app) handleExtractLinks(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.ExtractArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	content, fp, err := a.extract(ctx, args.URL, args.UseCache)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(content.Links); err == nil {
		a.cache.PutArtifact(ctx, fp, models.ArtifactLinks, data)
	}
	return map[string]interface{}{
		"url":   args.URL,
		"count": len(content.Links),
		"links": content.Links,
	}, nil
}

func (a *app) handleExtractMetadata(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.ExtractArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	content, fp, err := a.extract(ctx, args.URL, args.UseCache)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(content.Metadata); err == nil {
		a.cache.PutArtifact(ctx, fp, models.ArtifactMetadata, data)
	}
	return content.Metadata, nil
}

func (a *app) handleExtractContent(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.ExtractArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	content, fp, err := a.extract(ctx, args.URL, args.UseCache)
	if err != nil {
		return nil, err
	}
	if content.Markdown != "" {
		a.cache.PutArtifact(ctx, fp, models.ArtifactMarkdown, []byte(content.Markdown))
	}
	if args.Format == "text" || args.Format == "" {
		content.Markdown = ""
	}
	return content, nil
}

func (a *app) handleScrapeStructured(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.ScrapeStructuredArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	resp, _, err := a.fetchCached(ctx, args.URL, a.defaultPolicy(), useCache(args.UseCache))
	if err != nil {
		return nil, err
	}
	fields, err := a.extractor.ExtractStructured(ctx, resp.Body, args.Selectors)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"url":    resp.URL,
		"fields": fields,
	}, nil
}

func (a *app) handleSearchWeb(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.SearchWebArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	items, err := a.provider.Search(ctx, args.Query, args.Limit, args.Site, args.Localization)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"query":   args.Query,
		"count":   len(items),
		"results": items,
	}, nil
}

// crawlResultPayload wraps crawl output for the envelope's truncation flag.
type crawlResultPayload struct {
	*models.CrawlResult
}

func (p crawlResultPayload) WasTruncated() bool { return p.Truncated }

func (a *app) crawlConfigFromArgs(args tools.CrawlDeepArgs) models.CrawlConfig {
	cfg := models.CrawlConfig{
		MaxDepth:        args.MaxDepth,
		MaxPages:        args.MaxPages,
		IncludePatterns: args.IncludePatterns,
		ExcludePatterns: args.ExcludePatterns,
		FollowExternal:  args.FollowExternal,
		RespectRobots:   a.config.Crawl.RespectRobots,
		Concurrency:     args.Concurrency,
	}
	if args.RespectRobots != nil {
		cfg.RespectRobots = *args.RespectRobots
	}
	if args.TimeLimitMs > 0 {
		cfg.TimeLimit = time.Duration(args.TimeLimitMs) * time.Millisecond
	}
	return cfg
}

func (a *app) handleCrawlDeep(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.CrawlDeepArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}

	if args.Async {
		return a.submitJob(ctx, jobKindCrawl, raw, models.PriorityNormal)
	}

	result, err := a.crawler.Crawl(ctx, args.URL, a.crawlConfigFromArgs(args), nil)
	if err != nil {
		return nil, err
	}
	a.indexCrawl(result)
	return crawlResultPayload{result}, nil
}

// indexCrawl feeds successfully crawled pages into the search corpus.
func (a *app) indexCrawl(result *models.CrawlResult) {
	for _, page := range result.Pages {
		if page.Error != "" || page.Text == "" {
			continue
		}
		a.provider.AddDocument(ranker.Document{
			ID:    page.URL,
			URL:   page.URL,
			Title: page.Title,
			Body:  page.Text,
		})
	}
}

func (a *app) handleMapSite(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.MapSiteArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}

	cfg := models.CrawlConfig{
		MaxDepth:      args.MaxDepth,
		RespectRobots: a.config.Crawl.RespectRobots,
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 3
	}
	if args.RespectRobots != nil {
		cfg.RespectRobots = *args.RespectRobots
	}

	return a.crawler.MapSite(ctx, args.URL, args.MaxURLs, cfg)
}

// batchPage is one entry in the batch_scrape payload.
type batchPage struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
	ErrKind  string `json:"error_kind,omitempty"`
	FromHit  bool   `json:"from_cache,omitempty"`
	Duration int64  `json:"duration_ms"`
}

func (a *app) handleBatchScrape(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.BatchScrapeArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}

	if args.Async {
		priority := models.PriorityNormal
		switch args.Priority {
		case "low":
			priority = models.PriorityLow
		case "high":
			priority = models.PriorityHigh
		}
		return a.submitJob(ctx, jobKindBatchScrape, raw, priority)
	}

	return a.runBatch(ctx, args, nil)
}

func (a *app) runBatch(ctx context.Context, args tools.BatchScrapeArgs, progress func(float64)) (interface{}, error) {
	pages := make([]batchPage, len(args.URLs))
	var done int64
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Crawl.Concurrency)
	for i, url := range args.URLs {
		g.Go(func() error {
			start := time.Now()
			page := batchPage{URL: url}

			resp, _, err := a.fetchCached(gctx, url, a.defaultPolicy(), useCache(args.UseCache))
			if err != nil {
				e := models.AsError(err)
				page.Error = e.Message
				page.ErrKind = string(e.Kind)
			} else {
				page.FromHit = resp.FromCache
				switch args.Format {
				case "html":
					page.Content = string(resp.Body)
				default:
					content, err := a.extractor.Extract(gctx, resp.Body, resp.URL)
					if err != nil {
						e := models.AsError(err)
						page.Error = e.Message
						page.ErrKind = string(e.Kind)
					} else {
						page.Title = content.Title
						if args.Format == "markdown" && content.Markdown != "" {
							page.Content = content.Markdown
						} else {
							page.Content = content.Text
						}
						a.index(resp.URL, content)
					}
				}
			}
			page.Duration = time.Since(start).Milliseconds()

			mu.Lock()
			pages[i] = page
			done++
			if progress != nil {
				progress(float64(done) / float64(len(args.URLs)))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, p := range pages {
		if p.Error != "" {
			failed++
		}
	}
	return map[string]interface{}{
		"requested": len(args.URLs),
		"failed":    failed,
		"pages":     pages,
	}, nil
}

func (a *app) handleScrapeWithActions(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.ScrapeWithActionsArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if a.browser == nil {
		return nil, models.NewError(models.KindInvalidArgument, "browser capability is not configured")
	}

	if _, err := a.guard.Admit(ctx, args.URL); err != nil {
		return nil, err
	}

	actions := make([]interfaces.BrowserAction, len(args.Actions))
	for i, act := range args.Actions {
		actions[i] = interfaces.BrowserAction{
			Type:     act.Type,
			Selector: act.Selector,
			Value:    act.Value,
			Millis:   act.Millis,
		}
	}

	page, err := a.browser.Open(ctx, args.URL, actions)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"url":         page.URL,
		"title":       page.Title,
		"status_code": page.StatusCode,
		"screenshots": len(page.Screenshots),
	}
	switch args.Format {
	case "html":
		result["content"] = page.HTML
	default:
		content, err := a.extractor.Extract(ctx, []byte(page.HTML), page.URL)
		if err != nil {
			return nil, err
		}
		a.index(page.URL, content)
		if args.Format == "markdown" && content.Markdown != "" {
			result["content"] = content.Markdown
		} else {
			result["content"] = content.Text
		}
		result["title"] = content.Title
	}
	return result, nil
}

// researchPayload wraps research output for the envelope's truncation flag.
type researchPayload struct {
	*models.ResearchResult
}

func (p researchPayload) WasTruncated() bool { return p.Truncated }

func (a *app) researchRequestFromArgs(args tools.DeepResearchArgs) models.ResearchRequest {
	req := models.ResearchRequest{
		Topic:                args.Topic,
		Approach:             models.ResearchApproach(args.Approach),
		MaxDepth:             args.MaxDepth,
		MaxURLs:              args.MaxURLs,
		SourceTypes:          args.SourceTypes,
		CredibilityThreshold: args.CredibilityThreshold,
	}
	if args.TimeLimitMs > 0 {
		req.TimeLimit = time.Duration(args.TimeLimitMs) * time.Millisecond
	}
	return req
}

func (a *app) handleDeepResearch(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.DeepResearchArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}

	if args.Async {
		return a.submitJob(ctx, jobKindResearch, raw, models.PriorityNormal)
	}

	result, err := a.research.Run(ctx, a.researchRequestFromArgs(args), nil)
	if err != nil {
		return nil, err
	}
	return researchPayload{result}, nil
}

func (a *app) handleTrackChanges(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.TrackChangesArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}

	opts := models.TrackingOptions{
		Granularity:      models.TrackingGranularity(args.Granularity),
		Selector:         args.Selector,
		ExcludeSelectors: args.ExcludeSelectors,
	}

	requireURL := func() error {
		if args.URL == "" {
			return models.NewError(models.KindInvalidArgument, "parameter url is required for %s", args.Operation)
		}
		return nil
	}

	switch args.Operation {
	case "create_baseline":
		if err := requireURL(); err != nil {
			return nil, err
		}
		return a.tracker.Baseline(ctx, args.URL, opts)

	case "compare":
		if err := requireURL(); err != nil {
			return nil, err
		}
		rec, snap, err := a.tracker.Compare(ctx, args.URL, opts)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"change": rec, "snapshot": snap}, nil

	case "list_history":
		if err := requireURL(); err != nil {
			return nil, err
		}
		return a.tracker.History(ctx, args.URL, args.Limit)

	case "list_snapshots":
		if err := requireURL(); err != nil {
			return nil, err
		}
		return a.tracker.Snapshots(ctx, args.URL)

	case "get_snapshot":
		if args.SnapshotID == "" {
			return nil, models.NewError(models.KindInvalidArgument, "parameter snapshot_id is required")
		}
		snap, body, err := a.tracker.SnapshotContent(ctx, args.SnapshotID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"snapshot": snap, "content": string(body)}, nil

	case "delete_snapshot":
		if args.SnapshotID == "" {
			return nil, models.NewError(models.KindInvalidArgument, "parameter snapshot_id is required")
		}
		if err := a.tracker.DeleteSnapshot(ctx, args.SnapshotID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": args.SnapshotID}, nil

	case "create_alert_rule":
		if err := requireURL(); err != nil {
			return nil, err
		}
		if args.TargetURL == "" {
			return nil, models.NewError(models.KindInvalidArgument, "parameter target_url is required")
		}
		severity := models.ChangeSignificance(args.MinSeverity)
		if args.MinSeverity == "" {
			severity = models.SignificanceModerate
		}
		return a.tracker.AddAlertRule(ctx, args.URL, severity, args.TargetURL)

	case "list_alert_rules":
		return a.tracker.AlertRules(ctx, args.URL)

	case "start_monitor":
		if err := requireURL(); err != nil {
			return nil, err
		}
		if args.IntervalMs <= 0 {
			return nil, models.NewError(models.KindInvalidArgument, "parameter interval_ms is required")
		}
		id, err := a.tracker.StartMonitor(args.URL, time.Duration(args.IntervalMs)*time.Millisecond, opts)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"monitor_id": id}, nil

	case "stop_monitor":
		if args.MonitorID == "" {
			return nil, models.NewError(models.KindInvalidArgument, "parameter monitor_id is required")
		}
		if err := a.tracker.StopMonitor(args.MonitorID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"stopped": args.MonitorID}, nil

	case "list_monitors":
		return a.tracker.Monitors(), nil

	case "trend":
		if err := requireURL(); err != nil {
			return nil, err
		}
		return a.tracker.Trend(ctx, args.URL, time.Duration(args.WindowMs)*time.Millisecond)

	case "dashboard":
		return a.tracker.Dashboard(ctx)

	case "export":
		if err := requireURL(); err != nil {
			return nil, err
		}
		data, err := a.tracker.ExportHistory(ctx, args.URL, args.Format, args.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"url":    args.URL,
			"format": args.Format,
			"data":   string(data),
		}, nil

	default:
		return nil, models.NewError(models.KindInvalidArgument, "unknown operation %q", args.Operation)
	}
}

func (a *app) handleGetJobStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.JobArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return a.jobs.Status(ctx, args.JobID)
}

func (a *app) handleGetJobResult(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.JobArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	data, job, err := a.jobs.Result(ctx, args.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return map[string]interface{}{
			"job_id":   job.ID,
			"status":   job.Status,
			"progress": job.Progress,
		}, nil
	}
	return map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
		"result": json.RawMessage(data),
	}, nil
}

func (a *app) handleCancelJob(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.JobArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return a.jobs.Cancel(ctx, args.JobID)
}

func (a *app) handleListJobs(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args tools.ListJobsArgs
	if err := a.tools.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit == 0 {
		limit = 50
	}
	list, err := a.jobs.List(ctx, models.JobStatus(args.Status), limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"count": len(list),
		"jobs":  list,
	}, nil
}
