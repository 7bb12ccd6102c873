package budget

import (
	"sync"
	"time"
)

// dateLayout is the UTC date format used for ledger and store keys.
const dateLayout = "2006-01-02"

// dateKey returns the UTC calendar date of t.
func dateKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// ledger is one process's view of the daily budget.
type ledger struct {
	dateKey  string
	consumed int64
	costUSD  float64
	costByOp map[string]float64

	// outstanding survives day rollover until each reservation is resolved.
	outstanding map[string]*pending
}

// pending is an open reservation and, in shared mode, how far its
// finalization got in the store. A retry of the claiming action resumes
// from the first step that has not completed; any other caller is told the
// reservation is finalized.
type pending struct {
	// mu serializes finalization attempts on one reservation.
	mu  sync.Mutex
	res Reservation

	claimed    bool
	action     finalizeAction
	charged    bool
	unreserved bool
	done       bool
}

type finalizeAction int

const (
	actionCommit finalizeAction = iota + 1
	actionRelease
)

// settled reports whether p can be dropped from the ledger: either no
// claim is in flight in this process or finalization completed.
func (p *pending) settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.claimed || p.done
}

func newLedger(date string) *ledger {
	return &ledger{
		dateKey:     date,
		costByOp:    make(map[string]float64),
		outstanding: make(map[string]*pending),
	}
}

// roll starts a new day if date differs from the ledger's date.
// It returns the previous day's consumed total and whether a rollover happened.
func (l *ledger) roll(date string) (int64, bool) {
	if date == l.dateKey {
		return 0, false
	}
	prev := l.consumed
	l.dateKey = date
	l.consumed = 0
	l.costUSD = 0
	l.costByOp = make(map[string]float64)
	return prev, true
}

// outstandingSum returns the total amount held by open reservations.
func (l *ledger) outstandingSum() int64 {
	var sum int64
	for _, p := range l.outstanding {
		sum += p.res.Amount
	}
	return sum
}

// charge adds committed usage to the current day.
func (l *ledger) charge(operation string, tokens int64, costUSD float64) {
	l.consumed += tokens
	if costUSD > 0 {
		l.costUSD += costUSD
		if operation != "" {
			l.costByOp[operation] += costUSD
		}
	}
}
