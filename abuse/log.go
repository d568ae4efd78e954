package abuse

import (
	"sync"
	"time"
)

const (
	defaultMaxPerIdentity = 100
	defaultMaxIdentities  = 10000
)

// Record is one blocked or flagged request.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Patterns  []Kind    `json:"patterns"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
}

// Identity builds the log key from the client address and user id.
func Identity(ip, userID string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return ip + ":" + userID
}

// Log is an append-only, per-identity record of suspicious requests. Each identity keeps at
// most maxPerIdentity entries and the log keeps at most maxIdentities keys; the oldest are
// dropped first in both cases.
type Log struct {
	mu            sync.Mutex
	entries       map[string][]Record
	max           int
	maxIdentities int
}

// NewLog returns a Log keeping up to maxPerIdentity entries for each of up to maxIdentities
// keys. Non-positive values select the defaults.
func NewLog(maxPerIdentity, maxIdentities int) *Log {
	if maxPerIdentity <= 0 {
		maxPerIdentity = defaultMaxPerIdentity
	}
	if maxIdentities <= 0 {
		maxIdentities = defaultMaxIdentities
	}
	return &Log{
		entries:       make(map[string][]Record),
		max:           maxPerIdentity,
		maxIdentities: maxIdentities,
	}
}

// Append adds rec under identity. A new identity on a full log evicts the identity whose
// latest record is oldest.
func (l *Log) Append(identity string, rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[identity]; !ok && len(l.entries) >= l.maxIdentities {
		l.evictStalestLocked()
	}

	list := append(l.entries[identity], rec)
	if len(list) > l.max {
		list = append([]Record(nil), list[len(list)-l.max:]...)
	}
	l.entries[identity] = list
}

func (l *Log) evictStalestLocked() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for k, list := range l.entries {
		last := list[len(list)-1].Timestamp
		if !found || last.Before(oldest) {
			victim, oldest, found = k, last, true
		}
	}
	if found {
		delete(l.entries, victim)
	}
}

// Sweep drops records older than cutoff and forgets identities left empty. It returns the
// number of records removed.
func (l *Log) Sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, list := range l.entries {
		keep := 0
		for keep < len(list) && list[keep].Timestamp.Before(cutoff) {
			keep++
		}
		if keep == 0 {
			continue
		}
		removed += keep
		if keep == len(list) {
			delete(l.entries, k)
			continue
		}
		l.entries[k] = append([]Record(nil), list[keep:]...)
	}
	return removed
}

// Len reports how many identities hold records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the records of identity, oldest first.
func (l *Log) Entries(identity string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.entries[identity]...)
}

// Identities lists every key with at least one record.
func (l *Log) Identities() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.entries))
	for k := range l.entries {
		out = append(out, k)
	}
	return out
}
