package scanner

import (
	"sync"

	"github.com/jward/bbls/internal/project"
)

// State is the scanner's owned state: the published snapshot and the
// running/pending flags that coalesce overlapping rescan requests.
type State struct {
	mu       sync.Mutex
	running  bool
	pending  bool
	snapshot *project.Snapshot
}

func NewState() *State {
	return &State{snapshot: project.Empty()}
}

// Begin claims the scan loop. When a cycle is already running it records the
// request as pending and returns false.
func (s *State) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.pending = true
		return false
	}
	s.running = true
	return true
}

// Finish ends a cycle. It returns true when requests arrived meanwhile; the
// caller then runs exactly one more cycle. Any number of requests received
// during a cycle collapse into that one.
func (s *State) Finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		s.pending = false
		return true
	}
	s.running = false
	return false
}

func (s *State) Running() (running, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.pending
}

// Snapshot returns the last published snapshot. It is never nil.
func (s *State) Snapshot() *project.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Publish replaces the snapshot. snap must not be modified afterwards.
func (s *State) Publish(snap *project.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// Update publishes fn applied to the current snapshot, atomically.
func (s *State) Update(fn func(cur *project.Snapshot) *project.Snapshot) *project.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = fn(s.snapshot)
	return s.snapshot
}
