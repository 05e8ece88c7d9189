package changes

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

// features is what a page is reduced to for comparison. Each dimension
// feeds one weighted component of the change score.
type features struct {
	Text     string
	Words    []string // lowercased text tokens, in document order
	TagGrams map[string]struct{}
	Metadata map[string]string
	Visual   map[string]struct{} // image sources and class names
	Sections map[string]string   // heading -> section text hash
}

// extractFeatures parses the body and applies the tracking options:
// selector narrows scope, exclude selectors drop noise like clocks and ads.
func extractFeatures(body []byte, opts models.TrackingOptions) (*features, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, models.WrapError(models.KindCorruptArtifact, err, "cannot parse tracked content")
	}

	for _, sel := range opts.ExcludeSelectors {
		doc.Find(sel).Remove()
	}
	doc.Find("script, style, noscript").Remove()

	scope := doc.Selection
	if opts.Granularity == models.GranularityElement && opts.Selector != "" {
		scope = doc.Find(opts.Selector)
	}

	f := &features{
		Metadata: make(map[string]string),
		Visual:   make(map[string]struct{}),
		Sections: make(map[string]string),
	}

	f.Text = strings.Join(strings.Fields(scope.Text()), " ")
	f.Words = strings.Fields(strings.ToLower(f.Text))

	if opts.Granularity != models.GranularityTextOnly {
		var tags []string
		scope.Find("*").Each(func(_ int, sel *goquery.Selection) {
			tags = append(tags, goquery.NodeName(sel))
		})
		f.TagGrams = tagGrams(tags, 3)

		scope.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
			if src, ok := sel.Attr("src"); ok {
				f.Visual["img:"+src] = struct{}{}
			}
		})
		scope.Find("[class]").Each(func(_ int, sel *goquery.Selection) {
			if class, ok := sel.Attr("class"); ok {
				for _, c := range strings.Fields(class) {
					f.Visual["class:"+c] = struct{}{}
				}
			}
		})
	}

	f.Metadata["title"] = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("meta[name]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		content, _ := sel.Attr("content")
		f.Metadata["meta:"+name] = content
	})

	scope.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		heading := strings.TrimSpace(sel.Text())
		if heading == "" {
			return
		}
		section := strings.Join(strings.Fields(sel.NextUntil("h1, h2, h3").Text()), " ")
		f.Sections[heading] = hashString(section)
	})

	return f, nil
}

// TextHash is the content identity of the normalized text.
func (f *features) TextHash() string {
	return hashString(f.Text)
}

// StructuralHash folds the tag grams into a stable identity.
func (f *features) StructuralHash() string {
	keys := make([]string, 0, len(f.TagGrams))
	for k := range f.TagGrams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return hashString(strings.Join(keys, "\x00"))
}

// compare produces the weighted change score and the per-component record.
func compare(prev, curr *features, cfg common.ChangesConfig) *models.ChangeRecord {
	textChange := textDistance(prev.Words, curr.Words)
	structChange := 1 - jaccard(prev.TagGrams, curr.TagGrams)
	metaChange := mapChange(prev.Metadata, curr.Metadata)
	visualChange := 1 - jaccard(prev.Visual, curr.Visual)

	score := cfg.WeightText*textChange +
		cfg.WeightStructural*structChange +
		cfg.WeightMetadata*metaChange +
		cfg.WeightVisual*visualChange
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	rec := &models.ChangeRecord{
		Similarity:   1 - score,
		Score:        score,
		Significance: classify(score, cfg.Thresholds),
	}

	for heading, hash := range curr.Sections {
		if prevHash, ok := prev.Sections[heading]; !ok || prevHash != hash {
			rec.SectionsChanged = append(rec.SectionsChanged, heading)
		}
	}
	for heading := range prev.Sections {
		if _, ok := curr.Sections[heading]; !ok {
			rec.SectionsChanged = append(rec.SectionsChanged, heading+" (removed)")
		}
	}
	sort.Strings(rec.SectionsChanged)
	return rec
}

// classify maps a score onto the significance ladder using the four
// configured lower bounds: minor, moderate, major, critical.
func classify(score float64, thresholds []float64) models.ChangeSignificance {
	ladder := []models.ChangeSignificance{
		models.SignificanceMinor,
		models.SignificanceModerate,
		models.SignificanceMajor,
		models.SignificanceCritical,
	}
	result := models.SignificanceNone
	for i, bound := range thresholds {
		if i < len(ladder) && score >= bound {
			result = ladder[i]
		}
	}
	return result
}

// severityRank orders significance levels for threshold comparisons.
func severityRank(s models.ChangeSignificance) int {
	switch s {
	case models.SignificanceMinor:
		return 1
	case models.SignificanceModerate:
		return 2
	case models.SignificanceMajor:
		return 3
	case models.SignificanceCritical:
		return 4
	default:
		return 0
	}
}

// textDistance is the normalized word-level Levenshtein distance between
// the two token sequences, in [0,1]. Substituting a word costs the
// character-level distance between the words, so a punctuation or
// single-letter edit registers as a fraction of a change rather than a
// whole word replacement.
func textDistance(origA, origB []string) float64 {
	maxLen := len(origA)
	if len(origB) > maxLen {
		maxLen = len(origB)
	}
	if maxLen == 0 {
		return 0
	}

	// Page edits are usually local; trimming the shared prefix and suffix
	// keeps the matrix small.
	a, b := origA, origB
	for len(a) > 0 && len(b) > 0 && a[0] == b[0] {
		a, b = a[1:], b[1:]
	}
	for len(a) > 0 && len(b) > 0 && a[len(a)-1] == b[len(b)-1] {
		a, b = a[:len(a)-1], b[:len(b)-1]
	}
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	// The differing region itself bounds the distance, so a huge middle
	// does not justify the full matrix.
	if len(a)*len(b) > 1<<22 {
		d := len(a)
		if len(b) > d {
			d = len(b)
		}
		return float64(d) / float64(maxLen)
	}

	prev := make([]float64, len(b)+1)
	curr := make([]float64, len(b)+1)
	for j := range prev {
		prev[j] = float64(j)
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = float64(i)
		for j := 1; j <= len(b); j++ {
			cost := prev[j-1] + wordCost(a[i-1], b[j-1])
			if ins := curr[j-1] + 1; ins < cost {
				cost = ins
			}
			if del := prev[j] + 1; del < cost {
				cost = del
			}
			curr[j] = cost
		}
		prev, curr = curr, prev
	}
	return prev[len(b)] / float64(maxLen)
}

// wordCost is the normalized character-level edit distance between two
// words, in [0,1].
func wordCost(a, b string) float64 {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := prev[j-1]
			if ra[i-1] != rb[j-1] {
				cost++
			}
			if ins := curr[j-1] + 1; ins < cost {
				cost = ins
			}
			if del := prev[j] + 1; del < cost {
				cost = del
			}
			curr[j] = cost
		}
		prev, curr = curr, prev
	}
	return float64(prev[len(rb)]) / float64(maxLen)
}

func tagGrams(tags []string, n int) map[string]struct{} {
	set := make(map[string]struct{})
	if len(tags) == 0 {
		return set
	}
	if len(tags) < n {
		set[strings.Join(tags, ">")] = struct{}{}
		return set
	}
	for i := 0; i+n <= len(tags); i++ {
		set[strings.Join(tags[i:i+n], ">")] = struct{}{}
	}
	return set
}

// jaccard over two sets; two empty sets are identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// mapChange is the fraction of keys whose values differ across versions.
func mapChange(a, b map[string]string) float64 {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return 0
	}
	changed := 0
	for k := range keys {
		if a[k] != b[k] {
			changed++
		}
	}
	return float64(changed) / float64(len(keys))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

