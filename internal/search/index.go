package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
)

const userField = "user"

// Document is an analysis as it is indexed.
type Document struct {
	ID     string
	UserID string
	Goal   string
	Plan   []string
	Code   string
}

// Hit is one search result.
type Hit struct {
	ID      string  `json:"id"`
	Goal    string  `json:"goal"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Index is an in-memory full-text index of analyses, partitioned by user.
type Index struct {
	bleve bleve.Index
	mu    sync.RWMutex
	meta  map[string]Document
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	m := bleve.NewIndexMapping()
	user := bleve.NewTextFieldMapping()
	user.Analyzer = keyword.Name
	user.IncludeInAll = false
	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(userField, user)
	m.DefaultMapping = doc

	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{bleve: idx, meta: make(map[string]Document)}, nil
}

// Add indexes d, replacing any earlier version with the same ID.
func (x *Index) Add(d Document) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.meta[d.ID] = d
	return x.bleve.Index(d.ID, map[string]interface{}{
		userField: d.UserID,
		"goal":    d.Goal,
		"plan":    strings.Join(d.Plan, " "),
		"code":    d.Code,
	})
}

// Search returns up to k of userID's analyses matching q, best first.
func (x *Index) Search(userID, q string, k int) ([]Hit, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	owner := bleve.NewTermQuery(userID)
	owner.SetField(userField)
	query := bleve.NewConjunctionQuery(bleve.NewMatchQuery(q), owner)

	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := x.bleve.Search(req)
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Hit, 0, len(res.Hits))
	for i, h := range res.Hits {
		d := x.meta[h.ID]
		out = append(out, Hit{ID: h.ID, Goal: d.Goal, Snippet: snippet(d.Code), Score: h.Score, Rank: i + 1})
	}
	return out, nil
}

// Len returns the number of indexed analyses.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.meta)
}

// Close releases the index.
func (x *Index) Close() error { return x.bleve.Close() }

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[:300] + "..."
}
