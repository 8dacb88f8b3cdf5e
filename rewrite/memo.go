package rewrite

import "crypto/sha256"

// State is the memo entry for one normalized URL.
type State uint8

const (
	Unseen State = iota
	Rewritten
	Skipped
)

// Memo records which normalized URLs one Rewrite call has already handled.
// A Memo belongs to a single call and is never shared.
type Memo struct {
	entries map[[sha256.Size]byte]State
}

// NewMemo returns an empty Memo.
func NewMemo() *Memo {
	return &Memo{entries: make(map[[sha256.Size]byte]State)}
}

func key(u string) [sha256.Size]byte { return sha256.Sum256([]byte(u)) }

// State returns the entry for u.
func (m *Memo) State(u string) State { return m.entries[key(u)] }

// Seen reports whether u was rewritten or skipped.
func (m *Memo) Seen(u string) bool { return m.State(u) != Unseen }

// MarkRewritten records u as rewritten.
func (m *Memo) MarkRewritten(u string) { m.entries[key(u)] = Rewritten }

// MarkSkipped records u as deliberately left on origin.
func (m *Memo) MarkSkipped(u string) { m.entries[key(u)] = Skipped }

// Len returns the number of entries.
func (m *Memo) Len() int { return len(m.entries) }
