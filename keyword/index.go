// Package keyword implements the inverted-index probabilistic (BM25)
// ranking engine described in spec §4.2.
package keyword

import (
	"math"
	"sort"
	"sync"

	"github.com/contextcache/hybridmemory/types"
)

// Defaults for the BM25 scoring formula, per spec §6.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Filters matches equality against metadata exposed at index time.
type Filters map[string]any

// Result is one (doc_id, score) entry from Search.
type Result struct {
	DocID string
	Score float64
}

// Index is a monotonic mutable inverted index with BM25 ranking. The zero
// value is not usable; construct with New.
type Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	// postings[term][docID] = posting
	postings map[string]map[string]*types.Posting
	docLen   map[string]int
	docMeta  map[string]map[string]any
	totalLen int
	idfCache map[string]float64
}

// New constructs an Index with the given k1/b; zero values fall back to
// the spec §6 defaults.
func New(k1, b float64) *Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b <= 0 {
		b = DefaultB
	}
	return &Index{
		k1:       k1,
		b:        b,
		postings: make(map[string]map[string]*types.Posting),
		docLen:   make(map[string]int),
		docMeta:  make(map[string]map[string]any),
		idfCache: make(map[string]float64),
	}
}

// Index tokenizes text, updates postings, doc_lengths, and the running
// average document length. Re-indexing an existing doc_id first removes
// its prior postings.
func (idx *Index) Index(docID, text string, metadata map[string]any) {
	tokens := Tokenize(text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(docID)

	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	docLen := len(tokens)

	for term, f := range freq {
		m, ok := idx.postings[term]
		if !ok {
			m = make(map[string]*types.Posting)
			idx.postings[term] = m
		}
		m[docID] = &types.Posting{Term: term, DocID: docID, TermFreq: f, DocLen: docLen}
	}
	idx.docLen[docID] = docLen
	idx.totalLen += docLen
	if metadata != nil {
		idx.docMeta[docID] = metadata
	} else {
		delete(idx.docMeta, docID)
	}
	idx.refreshIDFLocked()
}

// Remove deletes all postings for docID.
func (idx *Index) Remove(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(docID)
	idx.refreshIDFLocked()
}

// refreshIDFLocked recomputes idf for every term currently in the index.
// Called at mutation time (under idx.mu's write lock) so Search only ever
// reads a complete, already-computed cache and can take the reader lock
// (spec §5: "reads are parallel, writes exclusive").
func (idx *Index) refreshIDFLocked() {
	n := len(idx.docLen)
	cache := make(map[string]float64, len(idx.postings))
	for term, docs := range idx.postings {
		cache[term] = idfFormula(n, len(docs))
	}
	idx.idfCache = cache
}

// removeLocked must be called with idx.mu held for writing.
func (idx *Index) removeLocked(docID string) {
	if dl, ok := idx.docLen[docID]; ok {
		idx.totalLen -= dl
		delete(idx.docLen, docID)
	}
	delete(idx.docMeta, docID)
	for term, m := range idx.postings {
		if _, ok := m[docID]; ok {
			delete(m, docID)
			if len(m) == 0 {
				delete(idx.postings, term)
			}
		}
	}
}

// Metadata returns the metadata attached to docID at index time, if any.
func (idx *Index) Metadata(docID string) (map[string]any, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m, ok := idx.docMeta[docID]
	return m, ok
}

// N returns the current number of indexed documents.
func (idx *Index) N() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docLen)
}

// avgdl returns the running average document length. Caller must hold idx.mu.
func (idx *Index) avgdlLocked() float64 {
	n := len(idx.docLen)
	if n == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(n)
}

// idfFormula computes the BM25 IDF term: ln((N-df+0.5)/(df+0.5) + 1).
func idfFormula(n, df int) float64 {
	return math.Log((float64(n-df)+0.5)/(float64(df)+0.5) + 1)
}

// Search returns the top-k documents ranked by BM25 score against query,
// subject to filters. Filters are evaluated before scoring: the candidate
// set is every document whose postings contain at least one query term AND
// that passes every filter.
func (idx *Index) Search(query string, k int, filters Filters) []Result {
	terms := uniqueTerms(Tokenize(query))
	if len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docLen)
	if n == 0 {
		return nil
	}
	avgdl := idx.avgdlLocked()

	type acc struct {
		score  float64
		tfSum  int
		docLen int
	}
	scores := make(map[string]*acc)

	for _, term := range terms {
		docs, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idx.idfCache[term]
		for docID, p := range docs {
			if !idx.passesFilters(docID, filters) {
				continue
			}
			a, ok := scores[docID]
			if !ok {
				a = &acc{docLen: p.DocLen}
				scores[docID] = a
			}
			tf := float64(p.TermFreq)
			num := tf * (idx.k1 + 1)
			den := tf + idx.k1*(1-idx.b+idx.b*float64(p.DocLen)/avgdl)
			a.score += idf * (num / den)
			a.tfSum += p.TermFreq
		}
	}

	results := make([]Result, 0, len(scores))
	tieKey := make(map[string]int, len(scores))
	for docID, a := range scores {
		results = append(results, Result{DocID: docID, Score: a.score})
		tieKey[docID] = a.docLen * a.tfSum
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := tieKey[results[i].DocID], tieKey[results[j].DocID]
		if ti != tj {
			return ti > tj
		}
		return results[i].DocID < results[j].DocID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// passesFilters checks doc metadata against filters. Caller must hold idx.mu.
func (idx *Index) passesFilters(docID string, filters Filters) bool {
	if len(filters) == 0 {
		return true
	}
	meta := idx.docMeta[docID]
	for key, want := range filters {
		if meta == nil {
			return false
		}
		got, ok := meta[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
