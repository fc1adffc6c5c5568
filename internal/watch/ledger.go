package watch

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the set of accounts currently watched for liquidation.
//
// Accounts stay in the set until a liquidation for them is confirmed; there is
// no eviction. It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	members map[common.Address]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{members: make(map[common.Address]struct{})}
}

// Add inserts addr and reports whether it was not already present.
// The zero address is never stored.
func (l *Ledger) Add(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.members[addr]; ok {
		return false
	}
	l.members[addr] = struct{}{}
	return true
}

// Remove deletes addr and reports whether it was present.
func (l *Ledger) Remove(addr common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.members[addr]; !ok {
		return false
	}
	delete(l.members, addr)
	return true
}

func (l *Ledger) Contains(addr common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.members[addr]
	return ok
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.members)
}

// Snapshot returns a copy of the current members in no particular order.
// Inserts that race with the call may or may not be included.
func (l *Ledger) Snapshot() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Address, 0, len(l.members))
	for addr := range l.members {
		out = append(out, addr)
	}
	return out
}
