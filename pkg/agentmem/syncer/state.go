package syncer

import "time"

const (
	// maxTrackedFiles bounds the in-memory per-file cursor table.
	maxTrackedFiles = 50
	// pruneFraction is how much of the table is evicted (oldest-touched
	// first) once it exceeds maxTrackedFiles.
	pruneFraction = 0.5
)

// fileState is the per-session-file sync cursor.
type fileState struct {
	LineCount   int
	BirthMs     int64
	LastTouched time.Time
}

// stateTable is a size-capped map of file path to fileState.
type stateTable struct {
	entries map[string]*fileState
}

func newStateTable() *stateTable {
	return &stateTable{entries: map[string]*fileState{}}
}

func (t *stateTable) get(path string) (*fileState, bool) {
	st, ok := t.entries[path]
	return st, ok
}

// touch records path's state and triggers pruning if the table has grown
// past its cap, evicting the least-recently-touched half.
func (t *stateTable) touch(path string, st *fileState) {
	st.LastTouched = time.Now()
	t.entries[path] = st
	if len(t.entries) <= maxTrackedFiles {
		return
	}

	type kv struct {
		path string
		at   time.Time
	}
	ordered := make([]kv, 0, len(t.entries))
	for p, s := range t.entries {
		ordered = append(ordered, kv{p, s.LastTouched})
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].at.Before(ordered[j-1].at); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	evict := int(float64(len(ordered)) * pruneFraction)
	for i := 0; i < evict; i++ {
		delete(t.entries, ordered[i].path)
	}
}
