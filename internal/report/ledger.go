package report

import (
	"sync"

	"github.com/sailorworks/open-hedge-fund/internal/engine"
)

// Ledger stores sealed snapshots in memory for quick inspection.
type Ledger struct {
	mu    sync.Mutex
	snaps []engine.DailySnapshot
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{snaps: make([]engine.DailySnapshot, 0, capacity)}
}

// Record appends a snapshot to the ledger.
func (l *Ledger) Record(snap engine.DailySnapshot) {
	l.mu.Lock()
	l.snaps = append(l.snaps, snap)
	l.mu.Unlock()
}

// Snapshots returns a copy of the recorded snapshots.
func (l *Ledger) Snapshots() []engine.DailySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]engine.DailySnapshot, len(l.snaps))
	copy(out, l.snaps)
	return out
}

// Reset clears all stored snapshots.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.snaps = l.snaps[:0]
	l.mu.Unlock()
}
