package history

import (
	"strings"
	"sync"
)

// DedupIndex holds the external identifiers already known to storage for the
// duration of one run. Identifiers compare case-insensitively.
//
// The index only saves round-trips: unique indexes on lower(external_id)
// remain the guarantee when two runs overlap.
type DedupIndex struct {
	mu        sync.Mutex
	canonical map[string]struct{}
	staged    map[string]struct{}
}

func NewDedupIndex(canonical, staged []string) *DedupIndex {
	idx := &DedupIndex{
		canonical: make(map[string]struct{}, len(canonical)),
		staged:    make(map[string]struct{}, len(staged)),
	}
	for _, id := range canonical {
		if key := dedupKey(id); key != "" {
			idx.canonical[key] = struct{}{}
		}
	}
	for _, id := range staged {
		if key := dedupKey(id); key != "" {
			idx.staged[key] = struct{}{}
		}
	}
	return idx
}

// ShouldAdmit reports whether a record with id may be stored. Empty ids are
// always admitted. An admitted id is remembered so later pages of the same
// run reject it.
func (d *DedupIndex) ShouldAdmit(id string) bool {
	key := dedupKey(id)
	if key == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.canonical[key]; ok {
		return false
	}
	if _, ok := d.staged[key]; ok {
		return false
	}
	d.staged[key] = struct{}{}
	return true
}

// Len returns the number of identifiers tracked.
func (d *DedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.canonical) + len(d.staged)
}

func dedupKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
