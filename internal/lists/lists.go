// Package lists manages the curated address lists that drive hard
// scoring overrides: sanction lists, known mixing services, and scam
// clusters.
//
// Lists are loaded from pluggable sources into immutable snapshots
// swapped atomically, so lookups on the scoring hot path never take a
// lock and never observe a half-reloaded list. Reloads are fail-open
// per list: a source that cannot be fetched keeps its previous
// entries.
package lists

import (
	"time"
)

// List kinds. Kind determines what a membership means to the rule
// engine; name identifies the concrete source (e.g. "ofac_sdn").
const (
	KindSanctioned  = "sanctioned"
	KindMixer       = "mixer"
	KindScamCluster = "scam_cluster"
)

// List is one loaded curated list. Immutable after load.
type List struct {
	Name     string
	Kind     string
	Source   string
	LoadedAt time.Time
	entries  map[string]struct{}
}

// Contains reports membership of a normalized (lowercase) address.
func (l *List) Contains(address string) bool {
	_, ok := l.entries[address]
	return ok
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Hit records that an address appears on a list.
type Hit struct {
	List string `json:"list"`
	Kind string `json:"kind"`
}

// Info describes a loaded list for the inspection API.
type Info struct {
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Source   string    `json:"source"`
	Entries  int       `json:"entries"`
	LoadedAt time.Time `json:"loadedAt"`
}
