// -----
// Ranker - Okapi BM25 over crawled documents with field-boosted term
// frequencies
// -----

package ranker

import (
	"math"
	"sort"
)

// BM25 free parameters. Title and heading occurrences count more than body
// occurrences via term-frequency boosts.
const (
	k1           = 1.2
	b            = 0.75
	k3           = 1.2
	titleBoost   = 2.0
	headingBoost = 1.5
)

// Document is one rankable unit.
type Document struct {
	ID       string
	URL      string
	Title    string
	Headings []string
	Body     string
}

// ScoredDocument pairs a document with its query score.
type ScoredDocument struct {
	Document
	Score float64
}

type indexedDoc struct {
	doc    Document
	terms  map[string]float64 // boosted term frequencies
	length float64            // boosted document length
}

// Index is an immutable BM25 index over a document set. Build once, query
// many times; queries are safe for concurrent use.
type Index struct {
	docs      []indexedDoc
	docFreq   map[string]int
	avgLength float64
}

// NewIndex builds the index. Field boosts are applied at indexing time:
// a title term counts as titleBoost occurrences.
func NewIndex(docs []Document) *Index {
	idx := &Index{
		docs:    make([]indexedDoc, 0, len(docs)),
		docFreq: make(map[string]int),
	}

	var totalLength float64
	for _, doc := range docs {
		terms := make(map[string]float64)
		addField := func(text string, boost float64) {
			for term, count := range termCounts(Tokenize(text)) {
				terms[term] += count * boost
			}
		}
		addField(doc.Title, titleBoost)
		for _, h := range doc.Headings {
			addField(h, headingBoost)
		}
		addField(doc.Body, 1.0)

		var length float64
		for _, f := range terms {
			length += f
		}

		for term := range terms {
			idx.docFreq[term]++
		}
		idx.docs = append(idx.docs, indexedDoc{doc: doc, terms: terms, length: length})
		totalLength += length
	}

	if len(idx.docs) > 0 {
		idx.avgLength = totalLength / float64(len(idx.docs))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// idf uses the standard BM25 formulation with the +1 inside the log, which
// keeps scores non-negative for terms present in most documents.
func (idx *Index) idf(term string) float64 {
	n := float64(idx.docFreq[term])
	if n == 0 {
		return 0
	}
	N := float64(len(idx.docs))
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

// Search scores every document against the query and returns the top limit
// results in descending score order. Ties keep indexing order so results
// are stable across runs. A limit <= 0 returns everything.
func (idx *Index) Search(query string, limit int) []ScoredDocument {
	queryTerms := termCounts(Tokenize(query))
	if len(queryTerms) == 0 || len(idx.docs) == 0 {
		return nil
	}

	scored := make([]ScoredDocument, 0, len(idx.docs))
	for _, d := range idx.docs {
		score := 0.0
		for term, qtf := range queryTerms {
			tf, ok := d.terms[term]
			if !ok {
				continue
			}
			idf := idx.idf(term)
			docPart := tf * (k1 + 1) / (tf + k1*(1-b+b*d.length/idx.avgLength))
			queryPart := qtf * (k3 + 1) / (qtf + k3)
			score += idf * docPart * queryPart
		}
		if score > 0 {
			scored = append(scored, ScoredDocument{Document: d.doc, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
