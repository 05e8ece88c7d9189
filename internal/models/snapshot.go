package models

import "time"

// Snapshot is a stored rendering of a URL's content at a point in time.
// Content bytes live in the snapshot store; this record is the index entry.
type Snapshot struct {
	ID             string            `json:"id" badgerhold:"key"`
	URL            string            `json:"url"`
	TakenAt        time.Time         `json:"taken_at"`
	StructuralHash string            `json:"structural_hash"`
	TextHash       string            `json:"text_hash"`
	ContentSize    int               `json:"content_size"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ChangeSignificance summarizes a change score into a categorical label.
type ChangeSignificance string

const (
	SignificanceNone     ChangeSignificance = "none"
	SignificanceMinor    ChangeSignificance = "minor"
	SignificanceModerate ChangeSignificance = "moderate"
	SignificanceMajor    ChangeSignificance = "major"
	SignificanceCritical ChangeSignificance = "critical"
)

// ChangeRecord captures one comparison between two snapshots of a URL.
type ChangeRecord struct {
	URL             string             `json:"url"`
	FromSnapshot    string             `json:"from_snapshot"`
	ToSnapshot      string             `json:"to_snapshot,omitempty"`
	Similarity      float64            `json:"similarity"` // [0,1]
	Score           float64            `json:"score"`      // weighted change score [0,1]
	Significance    ChangeSignificance `json:"significance"`
	SectionsChanged []string           `json:"sections_changed,omitempty"`
	ComputedAt      time.Time          `json:"computed_at"`
}

// TrackingGranularity selects the comparison unit.
type TrackingGranularity string

const (
	GranularityPage     TrackingGranularity = "page"
	GranularitySection  TrackingGranularity = "section"
	GranularityElement  TrackingGranularity = "element"
	GranularityTextOnly TrackingGranularity = "text"
)

// TrackingOptions configures baseline creation and comparison.
type TrackingOptions struct {
	Granularity       TrackingGranularity `json:"granularity,omitempty"`
	Selector          string              `json:"selector,omitempty"` // element granularity
	ExcludeSelectors  []string            `json:"exclude_selectors,omitempty"`
	NotifyThreshold   ChangeSignificance  `json:"notification_threshold,omitempty"`
	MinNotifyInterval time.Duration       `json:"min_notify_interval,omitempty"`
}

// AlertRule routes significant changes for a URL to a webhook target.
type AlertRule struct {
	ID           string             `json:"id" badgerhold:"key"`
	URL          string             `json:"url"`
	MinSeverity  ChangeSignificance `json:"min_severity"`
	TargetURL    string             `json:"target_url"`
	CreatedAt    time.Time          `json:"created_at"`
	LastNotified time.Time          `json:"last_notified,omitempty"`
}
