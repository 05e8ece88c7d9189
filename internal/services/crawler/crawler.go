// -----
// Crawler - bounded breadth-first crawl sessions with robots and scope
// enforcement
// -----

package crawler

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/fetcher"
	"github.com/ternarybob/venator/internal/services/ratelimit"
	"github.com/ternarybob/venator/internal/services/robots"
	"github.com/ternarybob/venator/internal/services/urlguard"
)

// Stop reasons recorded on the crawl result.
const (
	StopExhausted = "frontier_exhausted"
	StopMaxPages  = "max_pages"
	StopMaxDepth  = "max_depth"
	StopTimeLimit = "time_limit"
	StopCancelled = "cancelled"
)

// Service runs crawl sessions. Each session is independent; the fetch layer,
// guard, and robots cache are shared.
type Service struct {
	fetcher   *fetcher.Service
	guard     *urlguard.Guard
	robots    *robots.Cache
	limiter   *ratelimit.Limiter
	defaults  common.CrawlConfig
	userAgent string
	logger    arbor.ILogger
}

// NewService builds the crawler over the shared pipeline services.
func NewService(config *common.Config, f *fetcher.Service, guard *urlguard.Guard, rc *robots.Cache, limiter *ratelimit.Limiter, logger arbor.ILogger) *Service {
	return &Service{
		fetcher:   f,
		guard:     guard,
		robots:    rc,
		limiter:   limiter,
		defaults:  config.Crawl,
		userAgent: config.Fetch.UserAgent,
		logger:    logger,
	}
}

// frontierItem is one admitted URL awaiting fetch.
type frontierItem struct {
	url    models.CanonicalURL
	depth  int
	parent string
}

// session carries the per-crawl state.
type session struct {
	svc      *Service
	cfg      models.CrawlConfig
	seedHost string

	mu      sync.Mutex
	visited map[string]struct{}
	pages   []models.CrawlPage
	failed  int
}

// Crawl walks from the seed in strict level order: every admitted page at
// depth N is fetched before any page at depth N+1. Progress, when non-nil,
// receives the fraction of the page budget consumed.
func (s *Service) Crawl(ctx context.Context, seed string, cfg models.CrawlConfig, progress func(float64)) (*models.CrawlResult, error) {
	start := time.Now()
	s.applyDefaults(&cfg)

	seedURL, err := s.guard.Admit(ctx, seed)
	if err != nil {
		return nil, err
	}

	if cfg.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TimeLimit)
		defer cancel()
	}

	sess := &session{
		svc:      s,
		cfg:      cfg,
		seedHost: urlguard.RegistrableDomain(seedURL.Host),
		visited:  map[string]struct{}{seedURL.String(): {}},
	}

	result := &models.CrawlResult{Seed: seedURL.String(), StopReason: StopExhausted}
	wave := []frontierItem{{url: seedURL, depth: 0}}

	for len(wave) > 0 {
		depth := wave[0].depth
		if depth > result.MaxDepth {
			result.MaxDepth = depth
		}

		next, stop := sess.runWave(ctx, wave)
		if progress != nil && cfg.MaxPages > 0 {
			progress(float64(len(sess.pages)) / float64(cfg.MaxPages))
		}
		if stop != "" {
			result.StopReason = stop
			result.Truncated = stop != StopExhausted
			break
		}
		if len(next) > 0 && depth+1 >= cfg.MaxDepth {
			result.StopReason = StopMaxDepth
			result.Truncated = true
			break
		}
		wave = next
	}

	result.Pages = sess.pages
	result.Visited = len(sess.pages)
	result.Failed = sess.failed
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("seed", result.Seed).
		Int("visited", result.Visited).
		Int("failed", result.Failed).
		Int("max_depth", result.MaxDepth).
		Str("stop", result.StopReason).
		Dur("duration", result.Duration).
		Msg("Crawl finished")
	return result, nil
}

// runWave fetches one depth level concurrently and returns the next level's
// admitted frontier. Page order within a wave follows frontier order, so
// results are deterministic for a deterministic site.
func (sess *session) runWave(ctx context.Context, wave []frontierItem) ([]frontierItem, string) {
	cfg := sess.cfg

	// Respect the page budget before spending fetches.
	remaining := cfg.MaxPages - len(sess.pages)
	if remaining <= 0 {
		return nil, StopMaxPages
	}
	truncated := false
	if len(wave) > remaining {
		wave = wave[:remaining]
		truncated = true
	}

	slots := make([]*models.CrawlPage, len(wave))
	discovered := make([][]string, len(wave))

	g, waveCtx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, item := range wave {
		g.Go(func() error {
			page, links := sess.fetchPage(waveCtx, item)
			slots[i] = page
			discovered[i] = links
			return nil
		})
	}
	_ = g.Wait()

	for _, page := range slots {
		if page == nil {
			continue
		}
		sess.pages = append(sess.pages, *page)
		if page.Error != "" {
			sess.failed++
		}
	}

	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return nil, StopTimeLimit
		}
		return nil, StopCancelled
	}
	if truncated || len(sess.pages) >= cfg.MaxPages {
		if flatten(discovered) > 0 || truncated {
			return nil, StopMaxPages
		}
	}

	var next []frontierItem
	for i, links := range discovered {
		parent := wave[i].url.String()
		for _, link := range links {
			u, ok := sess.admit(link)
			if !ok {
				continue
			}
			next = append(next, frontierItem{url: u, depth: wave[i].depth + 1, parent: parent})
		}
	}
	return next, ""
}

// fetchPage retrieves one URL and parses its links. Failures become recorded
// pages, not aborts; a crawl survives individual dead links.
func (sess *session) fetchPage(ctx context.Context, item frontierItem) (*models.CrawlPage, []string) {
	s := sess.svc
	page := &models.CrawlPage{
		URL:    item.url.String(),
		Depth:  item.depth,
		Parent: item.parent,
	}

	if sess.cfg.RespectRobots {
		if !s.robots.Allowed(ctx, item.url, s.userAgent) {
			page.Error = "disallowed by robots.txt"
			page.ErrorKind = models.KindRobotsDisallowed
			return page, nil
		}
		if delay := s.robots.CrawlDelay(ctx, item.url, s.userAgent); delay > 0 {
			s.limiter.SetCrawlDelay(item.url.Host, delay)
		}
	}

	start := time.Now()
	resp, err := s.fetcher.Fetch(ctx, item.url.String(), fetcher.DefaultPolicy())
	page.Duration = time.Since(start)
	if err != nil {
		e := models.AsError(err)
		page.Error = e.Message
		page.ErrorKind = e.Kind
		page.StatusCode = e.StatusCode
		return page, nil
	}

	page.StatusCode = resp.StatusCode
	if !isHTML(resp) {
		return page, nil
	}

	content, err := parsePage(resp.URL, resp.Body)
	if err != nil {
		page.Error = models.AsError(err).Message
		page.ErrorKind = models.KindOf(err)
		return page, nil
	}
	page.Title = content.Title
	page.Text = content.Text
	page.Links = content.Links
	return page, content.Links
}

// admit decides whether a discovered link joins the frontier: guard-clean,
// in scope, pattern-matched, and not yet visited.
func (sess *session) admit(link string) (models.CanonicalURL, bool) {
	u, err := sess.svc.guard.Canonicalize(link)
	if err != nil {
		return models.CanonicalURL{}, false
	}
	key := u.String()

	if !sess.cfg.FollowExternal && urlguard.RegistrableDomain(u.Host) != sess.seedHost {
		return models.CanonicalURL{}, false
	}
	if !matchScope(key, sess.cfg.IncludePatterns, sess.cfg.ExcludePatterns) {
		return models.CanonicalURL{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, seen := sess.visited[key]; seen {
		return models.CanonicalURL{}, false
	}
	sess.visited[key] = struct{}{}
	return u, true
}

// matchScope applies include then exclude patterns. A pattern containing a
// glob metacharacter matches with path.Match semantics against the full URL;
// otherwise substring containment applies.
func matchScope(url string, include, exclude []string) bool {
	if len(include) > 0 {
		matched := false
		for _, p := range include {
			if matchPattern(url, p) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, p := range exclude {
		if matchPattern(url, p) {
			return false
		}
	}
	return true
}

func matchPattern(url, pattern string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, url)
		return err == nil && ok
	}
	return strings.Contains(url, pattern)
}

// MapSite walks the root in level order collecting URLs only, and merges in
// any sitemap URLs advertised by robots.txt.
func (s *Service) MapSite(ctx context.Context, root string, maxURLs int, cfg models.CrawlConfig) (*models.SiteMap, error) {
	s.applyDefaults(&cfg)
	if maxURLs > 0 {
		cfg.MaxPages = maxURLs
	}

	rootURL, err := s.guard.Admit(ctx, root)
	if err != nil {
		return nil, err
	}

	result, err := s.Crawl(ctx, root, cfg, nil)
	if err != nil {
		return nil, err
	}

	sm := &models.SiteMap{
		Root:        rootURL.String(),
		SitemapURLs: s.robots.Sitemaps(ctx, rootURL),
		Truncated:   result.Truncated,
	}
	for _, page := range result.Pages {
		if page.Error == "" {
			sm.URLs = append(sm.URLs, page.URL)
		}
	}
	return sm, nil
}

func (s *Service) applyDefaults(cfg *models.CrawlConfig) {
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = s.defaults.MaxDepth
	}
	if cfg.MaxDepth > 10 {
		cfg.MaxDepth = 10
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = s.defaults.MaxPages
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = s.defaults.Concurrency
	}
}

func flatten(lists [][]string) int {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	return n
}
