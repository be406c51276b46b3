package ssar

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-ssar/layering"
)

// SnapshotStore holds at most one session baseline. It has no persistence
// API; the baseline lives exactly as long as the process.
type SnapshotStore struct {
	mu       sync.RWMutex
	baseline *SnapshotSet
	now      func() time.Time
}

// NewSnapshotStore constructs an empty store. A nil clock uses time.Now.
func NewSnapshotStore(now func() time.Time) *SnapshotStore {
	if now == nil {
		now = time.Now
	}
	return &SnapshotStore{now: now}
}

// CaptureIfAbsent stores entries as the baseline unless one already exists.
// It returns the baseline in effect and whether this call created it. Every
// entry must carry a volatile key.
func (s *SnapshotStore) CaptureIfAbsent(plan string, entries []AttributeSnapshot) (SnapshotSet, bool, error) {
	for _, entry := range entries {
		if entry.Key.Identity != IdentityVolatile {
			return SnapshotSet{}, false, fmt.Errorf("%w: session snapshot got %s key %s", ErrIdentityMismatch, entry.Key.Identity, entry.Key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseline != nil {
		return cloneSnapshotSet(*s.baseline), false, nil
	}
	set := SnapshotSet{
		ID:        uuid.NewString(),
		Plan:      plan,
		CreatedAt: s.now(),
		Committed: true,
		Entries:   make([]AttributeSnapshot, len(entries)),
	}
	for i, entry := range entries {
		entry.Value = layering.Clone(NormalizeValue(entry.Value))
		set.Entries[i] = entry
	}
	s.baseline = &set
	return cloneSnapshotSet(set), true, nil
}

// Baseline returns a copy of the captured baseline.
func (s *SnapshotStore) Baseline() (SnapshotSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.baseline == nil {
		return SnapshotSet{}, false
	}
	return cloneSnapshotSet(*s.baseline), true
}

// HasBaseline reports whether a baseline was captured.
func (s *SnapshotStore) HasBaseline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseline != nil
}

// ForgetBaseline drops the baseline so the next capture records fresh values.
// It reports whether a baseline existed.
func (s *SnapshotStore) ForgetBaseline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.baseline != nil
	s.baseline = nil
	return existed
}

func cloneSnapshotSet(set SnapshotSet) SnapshotSet {
	out := set
	out.Entries = make([]AttributeSnapshot, len(set.Entries))
	for i, entry := range set.Entries {
		entry.Value = layering.Clone(entry.Value)
		out.Entries[i] = entry
	}
	return out
}
