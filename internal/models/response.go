package models

import "time"

// Response is the result of a completed fetch after redirects and
// decompression. Body length never exceeds the policy's max bytes.
type Response struct {
	URL           string            `json:"url"` // final URL after redirects
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          []byte            `json:"body,omitempty"`
	FetchedAt     time.Time         `json:"fetched_at"`
	FetchDuration time.Duration     `json:"fetch_duration"`
	RedirectHops  int               `json:"redirect_hops"`
	FromCache     bool              `json:"from_cache"`
}

// ArtifactKind identifies derived artifacts stored alongside a cached
// response (extracted text, metadata, links).
type ArtifactKind string

const (
	ArtifactText     ArtifactKind = "text"
	ArtifactMetadata ArtifactKind = "metadata"
	ArtifactLinks    ArtifactKind = "links"
	ArtifactMarkdown ArtifactKind = "markdown"
)

// CacheEntry is the unit stored in both cache tiers: the response plus any
// derived artifacts keyed by kind, each with its own TTL boundary.
type CacheEntry struct {
	Key       Fingerprint             `json:"key"`
	Response  *Response               `json:"response"`
	Artifacts map[ArtifactKind][]byte `json:"artifacts,omitempty"`
	StoredAt  time.Time               `json:"stored_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// PageMetadata is structured page metadata produced by the content extractor.
type PageMetadata struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Author       string            `json:"author,omitempty"`
	Language     string            `json:"language,omitempty"`
	CanonicalURL string            `json:"canonical_url,omitempty"`
	OpenGraph    map[string]string `json:"open_graph,omitempty"`
	TwitterCard  map[string]string `json:"twitter_card,omitempty"`
}

// ExtractedContent is the output of the ContentExtractor capability.
type ExtractedContent struct {
	Text     string       `json:"text"`
	Markdown string       `json:"markdown,omitempty"`
	Title    string       `json:"title,omitempty"`
	Headings []string     `json:"headings,omitempty"`
	Links    []string     `json:"links,omitempty"`
	Metadata PageMetadata `json:"metadata"`
}
