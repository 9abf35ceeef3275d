package policy

import "sync/atomic"

type snapshot struct {
	policy Policy
	hash   string
}

// Holder publishes the current policy snapshot. Reads are lock-free;
// writes replace the whole snapshot (last writer wins).
type Holder struct {
	cur atomic.Pointer[snapshot]
}

// NewHolder creates a holder seeded with p.
func NewHolder(p Policy, hash string) *Holder {
	h := &Holder{}
	h.Replace(p, hash)
	return h
}

// Snapshot returns the current policy. Callers must treat its slices as read-only.
func (h *Holder) Snapshot() Policy {
	return h.cur.Load().policy
}

// SnapshotWithHash returns the current policy and the hash of its source,
// both from the same snapshot.
func (h *Holder) SnapshotWithHash() (Policy, string) {
	s := h.cur.Load()
	return s.policy, s.hash
}

// Replace swaps in a new snapshot.
func (h *Holder) Replace(p Policy, hash string) {
	h.cur.Store(&snapshot{policy: p.Clone(), hash: hash})
}
