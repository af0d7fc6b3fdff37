package transport

import (
	"fmt"
	"sync"
)

const (
	// creditTarget is the window size the ledger tries to keep.
	creditTarget = 128
	// creditTopUp is the number of extra credits requested while the window
	// is below creditTarget.
	creditTopUp = 16
)

// DefaultInitialCredits is the window assumed before the first reply. It
// covers the largest compound a session builds with default I/O sizes.
const DefaultInitialCredits = creditTarget

// Ledger tracks the message id sequence and the credit window of a session.
// It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	nextID  uint64
	credits int
}

// NewLedger returns a ledger holding initial credits. Message ids start at
// firstID.
func NewLedger(firstID uint64, initial int) *Ledger {
	return &Ledger{nextID: firstID, credits: initial}
}

// AllocateMessageIDs consumes credits for every charge and returns the first
// message id of each. Either all charges are covered or none is.
func (l *Ledger) AllocateMessageIDs(charges []uint16) ([]uint64, error) {
	total := 0
	for _, c := range charges {
		total += int(max(c, 1))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if total > l.credits {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, total, l.credits)
	}
	ids := make([]uint64, len(charges))
	for i, c := range charges {
		ids[i] = l.nextID
		l.nextID += uint64(max(c, 1))
	}
	l.credits -= total
	return ids, nil
}

// CreditRequest returns the credits to request on a command of the given
// charge.
func (l *Ledger) CreditRequest(charge uint16) uint16 {
	charge = max(charge, 1)
	if l.AvailableCredits() < creditTarget {
		return charge + creditTopUp
	}
	return charge
}

// GrantCredits returns credits granted by the server to the window.
func (l *Ledger) GrantCredits(n uint16) {
	l.mu.Lock()
	l.credits += int(n)
	l.mu.Unlock()
}

// AvailableCredits returns the current window.
func (l *Ledger) AvailableCredits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credits
}

// Reset re-seeds the ledger for a new connection.
func (l *Ledger) Reset(firstID uint64, initial int) {
	l.mu.Lock()
	l.nextID = firstID
	l.credits = initial
	l.mu.Unlock()
}
