// Package robots fetches and memoizes robots.txt policies per host.
package robots

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

// Fetcher is the subset of the fetch layer the robots cache needs. Declared
// here so the cache does not import the fetcher package.
type Fetcher interface {
	FetchRaw(ctx context.Context, rawURL string, maxBytes int64, timeout time.Duration) (*models.Response, error)
}

type entry struct {
	data      *robotstxt.RobotsData
	sitemaps  []string
	fetchedAt time.Time
	failed    bool
}

// Cache answers allow/deny and crawl-delay questions from memoized
// robots.txt files. Entries expire after the configured TTL.
type Cache struct {
	fetcher    Fetcher
	ttl        time.Duration
	failClosed bool
	logger     arbor.ILogger

	mu      sync.RWMutex
	entries map[string]*entry // key: scheme://host[:port]
}

// NewCache creates a robots cache backed by the given fetcher.
func NewCache(fetcher Fetcher, config common.RobotsConfig, logger arbor.ILogger) *Cache {
	ttl := time.Duration(config.TTLMs) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		fetcher:    fetcher,
		ttl:        ttl,
		failClosed: config.FailClosed,
		logger:     logger,
		entries:    make(map[string]*entry),
	}
}

// Allowed reports whether the user agent may fetch the URL. Fetch failures
// default to allow unless fail_closed is configured.
func (c *Cache) Allowed(ctx context.Context, u models.CanonicalURL, userAgent string) bool {
	e := c.get(ctx, u)
	if e.data == nil {
		return !(e.failed && c.failClosed)
	}
	group := e.data.FindGroup(userAgent)
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

// CrawlDelay returns the crawl-delay directive for the host, zero when none.
func (c *Cache) CrawlDelay(ctx context.Context, u models.CanonicalURL, userAgent string) time.Duration {
	e := c.get(ctx, u)
	if e.data == nil {
		return 0
	}
	group := e.data.FindGroup(userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// Sitemaps returns the sitemap URLs advertised by the host's robots.txt.
func (c *Cache) Sitemaps(ctx context.Context, u models.CanonicalURL) []string {
	e := c.get(ctx, u)
	return e.sitemaps
}

func (c *Cache) get(ctx context.Context, u models.CanonicalURL) *entry {
	key := u.Scheme + "://" + u.HostPort()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e
	}

	e = c.fetch(ctx, u)

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e
}

func (c *Cache) fetch(ctx context.Context, u models.CanonicalURL) *entry {
	robotsURL := u.Scheme + "://" + u.HostPort() + "/robots.txt"
	e := &entry{fetchedAt: time.Now()}

	resp, err := c.fetcher.FetchRaw(ctx, robotsURL, 512*1024, 10*time.Second)
	if err != nil {
		c.logger.Debug().Err(err).Str("host", u.Host).Msg("robots.txt fetch failed")
		e.failed = true
		return e
	}

	// 4xx means no policy; 5xx is treated as a fetch failure.
	if resp.StatusCode >= 500 {
		e.failed = true
		return e
	}
	if resp.StatusCode >= 400 {
		return e
	}

	data, err := robotstxt.FromBytes(resp.Body)
	if err != nil {
		c.logger.Debug().Err(err).Str("host", u.Host).Msg("robots.txt parse failed")
		return e
	}
	e.data = data
	e.sitemaps = extractSitemaps(resp.Body)
	return e
}

// robotstxt exposes groups but not sitemap directives, so those are scanned
// directly.
func extractSitemaps(body []byte) []string {
	var sitemaps []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		if sm := strings.TrimSpace(line[8:]); sm != "" {
			sitemaps = append(sitemaps, sm)
		}
	}
	return sitemaps
}

// Invalidate drops the cached policy for a host. Used by tests and by the
// change tracker when a monitored site rotates policies.
func (c *Cache) Invalidate(u models.CanonicalURL) {
	c.mu.Lock()
	delete(c.entries, u.Scheme+"://"+u.HostPort())
	c.mu.Unlock()
}
