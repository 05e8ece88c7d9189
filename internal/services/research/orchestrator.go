// -----
// Research Orchestrator - staged topic research over the shared pipeline:
// query expansion, source gathering, scoring, dedup, and synthesis
// -----

package research

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/dedup"
	"github.com/ternarybob/venator/internal/services/fetcher"
	"github.com/ternarybob/venator/internal/services/ranker"
)

const (
	defaultQueryFanout = 5
	fetchConcurrency   = 8
	bm25Weight         = 0.4
	semanticWeight     = 0.6
	maxQuotes          = 3
)

// Orchestrator runs deep-research sessions. The semantic scorer and
// synthesizer are optional; lexical fallbacks keep the pipeline functional
// without them.
type Orchestrator struct {
	fetcher     *fetcher.Service
	extractor   interfaces.ContentExtractor
	provider    interfaces.SearchProvider
	scorer      interfaces.SemanticScorer
	synthesizer interfaces.Synthesizer
	defaults    common.ResearchConfig
	logger      arbor.ILogger
}

// NewOrchestrator wires the research stages.
func NewOrchestrator(cfg common.ResearchConfig, f *fetcher.Service, ex interfaces.ContentExtractor, p interfaces.SearchProvider, scorer interfaces.SemanticScorer, syn interfaces.Synthesizer, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		fetcher:     f,
		extractor:   ex,
		provider:    p,
		scorer:      scorer,
		synthesizer: syn,
		defaults:    cfg,
		logger:      logger,
	}
}

type source struct {
	url     string
	content *models.ExtractedContent
}

// Run executes the staged research flow under the request's budgets.
func (o *Orchestrator) Run(ctx context.Context, req models.ResearchRequest, progress func(float64)) (*models.ResearchResult, error) {
	start := time.Now()
	o.applyDefaults(&req)

	ctx, cancel := context.WithTimeout(ctx, req.TimeLimit)
	defer cancel()

	result := &models.ResearchResult{Topic: req.Topic}

	// Stage 1: query expansion.
	queries := o.expand(ctx, req)
	result.Metrics.QueriesExpanded = len(queries)
	report(progress, 0.1)

	// Stage 2: candidate gathering.
	candidates := o.gather(ctx, queries, req)
	result.Metrics.SourcesFound = len(candidates)
	report(progress, 0.25)

	// Stage 3: fetch and extract.
	sources, fetched := o.collect(ctx, candidates, req)
	result.Metrics.PagesFetched = fetched
	report(progress, 0.55)

	if ctx.Err() != nil {
		result.Truncated = true
	}
	if len(candidates) > req.MaxURLs {
		result.Truncated = true
	}

	// Stages 4-5: relevance scoring and credibility filtering.
	findings, queryHits := o.score(ctx, req, queries, sources)
	result.Metrics.PagesDiscarded = len(sources) - len(findings)
	report(progress, 0.75)

	// Stage 6: near-duplicate clustering.
	findings, dropped := clusterFindings(findings, sources)
	result.Metrics.PagesDiscarded += dropped
	result.Findings = findings
	report(progress, 0.85)

	// Stage 7: synthesis and conflict detection.
	o.synthesize(ctx, req, result, queries, queryHits)
	result.Conflicts = detectConflicts(result.Findings, sources)

	result.Metrics.Duration = time.Since(start)
	report(progress, 1)

	o.logger.Info().
		Str("topic", req.Topic).
		Int("queries", result.Metrics.QueriesExpanded).
		Int("fetched", result.Metrics.PagesFetched).
		Int("findings", len(result.Findings)).
		Bool("truncated", result.Truncated).
		Dur("duration", result.Metrics.Duration).
		Msg("Research run finished")
	return result, nil
}

func (o *Orchestrator) applyDefaults(req *models.ResearchRequest) {
	if req.Approach == "" {
		req.Approach = models.ApproachBroad
	}
	if req.TimeLimit <= 0 {
		req.TimeLimit = time.Duration(o.defaults.DefaultTimeLimitMs) * time.Millisecond
	}
	if req.MaxURLs <= 0 || req.MaxURLs > o.defaults.MaxURLs {
		req.MaxURLs = o.defaults.MaxURLs
	}
	if req.MaxDepth < 1 {
		req.MaxDepth = 1
	}
	if req.CredibilityThreshold < 0 {
		req.CredibilityThreshold = 0
	}
}

func (o *Orchestrator) expand(ctx context.Context, req models.ResearchRequest) []string {
	if o.scorer != nil {
		queries, err := o.scorer.ExpandQueries(ctx, req.Topic, req.Approach, defaultQueryFanout)
		if err == nil && len(queries) > 0 {
			return queries
		}
		o.logger.Debug().Err(err).Msg("Semantic expansion unavailable, using lexical templates")
	}
	return expandQueries(req.Topic, req.Approach, defaultQueryFanout)
}

// gather collects candidate URLs across all queries, deduplicated, capped
// at the URL budget.
func (o *Orchestrator) gather(ctx context.Context, queries []string, req models.ResearchRequest) []string {
	perQuery := req.MaxURLs/len(queries) + 1
	seen := make(map[string]struct{})
	var candidates []string

	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		items, err := o.provider.Search(ctx, q, perQuery, "", "")
		if err != nil {
			o.logger.Debug().Err(err).Str("query", q).Msg("Search failed")
			continue
		}
		for _, item := range items {
			if _, dup := seen[item.URL]; dup {
				continue
			}
			if !sourceTypeMatch(item.URL, req.SourceTypes) {
				continue
			}
			seen[item.URL] = struct{}{}
			candidates = append(candidates, item.URL)
		}
	}

	if len(candidates) > req.MaxURLs {
		candidates = candidates[:req.MaxURLs]
	}
	return candidates
}

// collect fetches candidates concurrently and extracts their content,
// following in-page links wave by wave up to the request's depth, within
// the URL budget. Individual failures are discarded, not fatal.
func (o *Orchestrator) collect(ctx context.Context, candidates []string, req models.ResearchRequest) ([]source, int) {
	seen := make(map[string]struct{}, len(candidates))
	for _, u := range candidates {
		seen[u] = struct{}{}
	}

	var mu sync.Mutex
	var sources []source
	fetched := 0

	frontier := candidates
	for depth := 1; depth <= req.MaxDepth && len(frontier) > 0 && ctx.Err() == nil; depth++ {
		var next []string

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchConcurrency)
		for _, rawURL := range frontier {
			g.Go(func() error {
				resp, err := o.fetcher.Fetch(gctx, rawURL, fetcher.DefaultPolicy())
				if err != nil {
					return nil
				}
				content, err := o.extractor.Extract(gctx, resp.Body, resp.URL)
				if err != nil || content.Text == "" {
					return nil
				}
				mu.Lock()
				fetched++
				sources = append(sources, source{url: resp.URL, content: content})
				if depth < req.MaxDepth {
					for _, link := range content.Links {
						if len(seen) >= req.MaxURLs {
							break
						}
						if _, dup := seen[link]; dup {
							continue
						}
						if !sourceTypeMatch(link, req.SourceTypes) {
							continue
						}
						seen[link] = struct{}{}
						next = append(next, link)
					}
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		frontier = next
	}

	// Keep ordering stable regardless of fetch completion order.
	sort.Slice(sources, func(i, j int) bool { return sources[i].url < sources[j].url })
	return sources, fetched
}

// score combines BM25 and semantic relevance, then filters on credibility.
// Returns findings plus, per query, whether any source matched it.
func (o *Orchestrator) score(ctx context.Context, req models.ResearchRequest, queries []string, sources []source) ([]models.Finding, map[string]bool) {
	queryHits := make(map[string]bool, len(queries))
	if len(sources) == 0 {
		return nil, queryHits
	}

	docs := make([]ranker.Document, len(sources))
	for i, src := range sources {
		docs[i] = ranker.Document{
			ID:       src.url,
			URL:      src.url,
			Title:    src.content.Title,
			Headings: src.content.Headings,
			Body:     src.content.Text,
		}
	}
	idx := ranker.NewIndex(docs)

	bm25 := make(map[string]float64, len(sources))
	var maxScore float64
	for _, scored := range idx.Search(req.Topic, 0) {
		bm25[scored.Document.URL] = scored.Score
		if scored.Score > maxScore {
			maxScore = scored.Score
		}
	}

	for _, q := range queries {
		if len(idx.Search(q, 1)) > 0 {
			queryHits[q] = true
		}
	}

	var findings []models.Finding
	for _, src := range sources {
		lexical := 0.0
		if maxScore > 0 {
			lexical = bm25[src.url] / maxScore
		}

		relevance := lexical
		if o.scorer != nil {
			if semantic, err := o.scorer.Score(ctx, req.Topic, src.content.Text); err == nil {
				relevance = bm25Weight*lexical + semanticWeight*semantic
			}
		}

		cred := credibility(src.url)
		if cred < req.CredibilityThreshold {
			continue
		}
		if relevance <= 0 {
			continue
		}

		findings = append(findings, models.Finding{
			URL:         src.url,
			Title:       src.content.Title,
			Excerpt:     excerpt(src.content.Text),
			Relevance:   relevance,
			Credibility: cred,
			Quotes:      pullQuotes(src.content.Text, req.Topic),
		})
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Relevance != findings[j].Relevance {
			return findings[i].Relevance > findings[j].Relevance
		}
		return findings[i].URL < findings[j].URL
	})
	return findings, queryHits
}

// clusterFindings drops near-duplicate sources, keeping the highest-ranked
// member of each SimHash cluster.
func clusterFindings(findings []models.Finding, sources []source) ([]models.Finding, int) {
	if len(findings) < 2 {
		return findings, 0
	}

	texts := make(map[string]string, len(sources))
	for _, src := range sources {
		texts[src.url] = src.content.Text
	}

	fingerprints := make([]uint64, len(findings))
	for i, f := range findings {
		fingerprints[i] = dedup.Fingerprint(texts[f.URL])
	}

	clusters := dedup.Cluster(fingerprints, dedup.DefaultThreshold)
	kept := make([]models.Finding, 0, len(findings))
	seen := make(map[int]struct{})
	dropped := 0
	for i, f := range findings {
		root := clusters[i]
		if _, dup := seen[root]; dup {
			dropped++
			continue
		}
		seen[root] = struct{}{}
		f.Cluster = root
		kept = append(kept, f)
	}
	return kept, dropped
}

// synthesize fills the narrative fields, via the Synthesizer when wired or
// a lexical fallback otherwise.
func (o *Orchestrator) synthesize(ctx context.Context, req models.ResearchRequest, result *models.ResearchResult, queries []string, queryHits map[string]bool) {
	if o.synthesizer != nil {
		summary, themes, gaps, err := o.synthesizer.Synthesize(ctx, req.Topic, result.Findings)
		if err == nil {
			result.Summary = summary
			result.Themes = themes
			result.Gaps = gaps
			return
		}
		o.logger.Debug().Err(err).Msg("Synthesizer unavailable, using lexical fallback")
	}

	// Summary: leading excerpts of the top findings.
	var parts []string
	for i, f := range result.Findings {
		if i == 3 {
			break
		}
		if f.Excerpt != "" {
			parts = append(parts, f.Excerpt)
		}
	}
	result.Summary = strings.Join(parts, " ")

	result.Themes = commonThemes(result.Findings)

	// Gaps: expanded queries no source answered.
	for _, q := range queries {
		if !queryHits[q] {
			result.Gaps = append(result.Gaps, q)
		}
	}
}

// commonThemes surfaces heading terms shared across multiple findings.
func commonThemes(findings []models.Finding) []string {
	counts := make(map[string]int)
	for _, f := range findings {
		seen := make(map[string]struct{})
		for _, tok := range ranker.Tokenize(f.Title + " " + f.Excerpt) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			counts[tok]++
		}
	}

	type themeCount struct {
		term  string
		count int
	}
	var ranked []themeCount
	for term, count := range counts {
		if count >= 2 {
			ranked = append(ranked, themeCount{term, count})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})

	var themes []string
	for i, t := range ranked {
		if i == 8 {
			break
		}
		themes = append(themes, t.term)
	}
	return themes
}

// detectConflicts flags sentence pairs across sources that share most of
// their vocabulary but disagree on negation. Heuristic by design.
func detectConflicts(findings []models.Finding, sources []source) []models.Conflict {
	texts := make(map[string]string, len(sources))
	for _, src := range sources {
		texts[src.url] = src.content.Text
	}

	type claim struct {
		url      string
		sentence string
		tokens   map[string]struct{}
		negated  bool
	}

	var claims []claim
	for _, f := range findings {
		for _, sentence := range splitSentences(texts[f.URL]) {
			tokens := ranker.Tokenize(sentence)
			if len(tokens) < 5 || len(tokens) > 30 {
				continue
			}
			set := make(map[string]struct{}, len(tokens))
			for _, t := range tokens {
				set[t] = struct{}{}
			}
			claims = append(claims, claim{
				url:      f.URL,
				sentence: sentence,
				tokens:   set,
				negated:  isNegated(sentence),
			})
		}
	}

	var conflicts []models.Conflict
	for i := 0; i < len(claims) && len(conflicts) < 5; i++ {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if a.url == b.url || a.negated == b.negated {
				continue
			}
			if overlap(a.tokens, b.tokens) < 0.6 {
				continue
			}
			conflicts = append(conflicts, models.Conflict{
				Claim:   a.sentence,
				Sources: []string{a.url, b.url},
				Detail:  "sources disagree on negation of a shared claim",
			})
			break
		}
	}
	return conflicts
}

var negationMarkers = []string{" not ", " no longer ", " never ", "n't ", " without "}

func isNegated(sentence string) bool {
	s := " " + strings.ToLower(sentence) + " "
	for _, marker := range negationMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func overlap(a, b map[string]struct{}) float64 {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	if len(small) == 0 {
		return 0
	}
	hits := 0
	for t := range small {
		if _, ok := large[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(small))
}

func splitSentences(text string) []string {
	var sentences []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= 300 {
		return text
	}
	return string(runes[:300]) + "..."
}

// pullQuotes returns sentences containing topic terms, longest-overlap
// first.
func pullQuotes(text, topic string) []string {
	topicTokens := ranker.Tokenize(topic)
	if len(topicTokens) == 0 {
		return nil
	}
	topicSet := make(map[string]struct{}, len(topicTokens))
	for _, t := range topicTokens {
		topicSet[t] = struct{}{}
	}

	type scored struct {
		sentence string
		hits     int
	}
	var candidates []scored
	for _, sentence := range splitSentences(text) {
		hits := 0
		for _, tok := range ranker.Tokenize(sentence) {
			if _, ok := topicSet[tok]; ok {
				hits++
			}
		}
		if hits > 0 {
			candidates = append(candidates, scored{sentence, hits})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].hits > candidates[j].hits })

	var quotes []string
	for i, c := range candidates {
		if i == maxQuotes {
			break
		}
		quotes = append(quotes, c.sentence)
	}
	return quotes
}

func report(progress func(float64), fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}
