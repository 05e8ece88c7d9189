package research

import (
	"net/url"
	"strings"
)

// credibility assigns a [0,1] source-quality heuristic from the URL alone.
// This is a prior, not a verdict; relevance scoring still dominates ranking.
func credibility(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0.3
	}
	host := strings.ToLower(u.Hostname())

	score := 0.55
	switch {
	case strings.HasSuffix(host, ".gov"), strings.HasSuffix(host, ".mil"):
		score = 0.95
	case strings.HasSuffix(host, ".edu"), strings.HasSuffix(host, ".ac.uk"):
		score = 0.9
	case strings.Contains(host, "wikipedia.org"):
		score = 0.85
	case strings.HasSuffix(host, ".org"):
		score = 0.7
	case strings.Contains(host, "github.com"), strings.Contains(host, "arxiv.org"):
		score = 0.8
	case strings.Contains(host, "medium.com"), strings.Contains(host, "substack.com"),
		strings.Contains(host, "blogspot."), strings.Contains(host, "wordpress."):
		score = 0.45
	}

	if u.Scheme != "https" {
		score -= 0.1
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// sourceTypeMatch checks the URL against the requested source-type filters.
// An empty filter admits everything.
func sourceTypeMatch(rawURL string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())

	for _, t := range types {
		switch strings.ToLower(t) {
		case "government":
			if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") {
				return true
			}
		case "academic":
			if strings.HasSuffix(host, ".edu") || strings.Contains(host, "arxiv.org") ||
				strings.HasSuffix(host, ".ac.uk") {
				return true
			}
		case "reference":
			if strings.Contains(host, "wikipedia.org") || strings.HasSuffix(host, ".org") {
				return true
			}
		case "code":
			if strings.Contains(host, "github.com") || strings.Contains(host, "gitlab.com") {
				return true
			}
		case "any":
			return true
		}
	}
	return false
}
