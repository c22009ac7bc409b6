// Package index keeps a full-text index over retrieved record payloads.
package index

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/archivist/models"
)

const (
	DefaultK = 10
	maxK     = 50
)

type document struct {
	ID        string    `json:"id"`
	Stamp     string    `json:"stamp"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
	Stamp string  `json:"stamp"`
	Text  string  `json:"text"`
}

type Index struct {
	mu    sync.RWMutex
	bleve bleve.Index
}

// Open opens the index at path, creating it when missing. An empty path gives an in-memory index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
		return &Index{bleve: idx}, nil
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{bleve: idx}, nil
}

func (i *Index) Close() error {
	return i.bleve.Close()
}

// Add indexes records in one batch. Re-adding an ID replaces the document.
func (i *Index) Add(records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	batch := i.bleve.NewBatch()
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if err := batch.Index(r.ID, document{ID: r.ID, Stamp: r.Stamp, Text: r.Text, Timestamp: r.Timestamp}); err != nil {
			return fmt.Errorf("index record %s: %w", r.ID, err)
		}
	}
	return i.bleve.Batch(batch)
}

func (i *Index) Count() (uint64, error) {
	return i.bleve.DocCount()
}

// Search runs a query-string query. k is clamped to 1..50; zero means DefaultK.
func (i *Index) Search(q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultK
	}
	if k > maxK {
		k = maxK
	}
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)
	searchReq.Fields = []string{"stamp", "text"}

	i.mu.RLock()
	res, err := i.bleve.Search(searchReq)
	i.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(res.Hits))
	for n, hit := range res.Hits {
		h := Hit{ID: hit.ID, Score: hit.Score, Rank: n + 1}
		if s, ok := hit.Fields["stamp"].(string); ok {
			h.Stamp = s
		}
		if s, ok := hit.Fields["text"].(string); ok {
			h.Text = snippet(s)
		}
		out = append(out, h)
	}
	return out, nil
}

const snippetLen = 300

// snippet cuts s to at most snippetLen bytes on a rune boundary.
func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
