package retrieval

import (
	"sort"

	"github.com/mohammad-safakhou/archivist/models"
)

// recordSet accumulates accepted batches, keeping the first copy of every ID.
type recordSet struct {
	seen    map[string]struct{}
	records []models.Record
}

func newRecordSet() *recordSet {
	return &recordSet{seen: make(map[string]struct{})}
}

// merge adds batch and returns how many records were new. A record sitting exactly on a
// sub-range boundary can come back from both neighbouring queries.
func (s *recordSet) merge(batch []models.Record) int {
	added := 0
	for _, rec := range batch {
		if _, dup := s.seen[rec.ID]; dup {
			continue
		}
		s.seen[rec.ID] = struct{}{}
		s.records = append(s.records, rec)
		added++
	}
	return added
}

// sorted returns the records ordered by timestamp, ties broken by ID.
func (s *recordSet) sorted() []models.Record {
	out := make([]models.Record, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
