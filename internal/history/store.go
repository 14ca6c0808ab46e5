// Package history is the append-only log of everything sessions produced,
// with search, analysis, filtering and export over it. Stored records are
// never modified; every query works on copies.
package history

import (
	"sort"
	"sync"
	"time"

	"shellpilot/internal/logger"
	"shellpilot/pkg/shelltypes"
)

// Store is the output history. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []shelltypes.OutputRecord
	nextID  uint64
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for timestamps and time ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stores rec and returns the stored copy. The store assigns the ID;
// a zero timestamp is replaced with the current time and an empty severity
// with info.
func (s *Store) Append(rec shelltypes.OutputRecord) shelltypes.OutputRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	if rec.Severity == "" {
		rec.Severity = shelltypes.SeverityInfo
	}

	s.records = append(s.records, rec)
	return rec
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of every record in append order.
func (s *Store) Records() []shelltypes.OutputRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]shelltypes.OutputRecord(nil), s.records...)
}

// SessionCount is the number of records one session produced.
type SessionCount struct {
	Session string
	Records int
	Latest  time.Time
}

// Sessions summarizes the stored records per session, sorted by name.
func (s *Store) Sessions() []SessionCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySession := make(map[string]*SessionCount)
	for _, rec := range s.records {
		sc, ok := bySession[rec.SessionName]
		if !ok {
			sc = &SessionCount{Session: rec.SessionName}
			bySession[rec.SessionName] = sc
		}
		sc.Records++
		if rec.Timestamp.After(sc.Latest) {
			sc.Latest = rec.Timestamp
		}
	}

	out := make([]SessionCount, 0, len(bySession))
	for _, sc := range bySession {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out
}

// Clear removes the records of session, or all records when session is
// empty, and returns how many were removed. IDs keep increasing afterwards.
func (s *Store) Clear(session string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	if session == "" {
		s.records = nil
	} else {
		kept := make([]shelltypes.OutputRecord, 0, len(s.records))
		for _, rec := range s.records {
			if rec.SessionName != session {
				kept = append(kept, rec)
			}
		}
		s.records = kept
	}

	removed := before - len(s.records)
	logger.NewStyledLogger("History").Debug("Cleared history", "session", session, "removed", removed)
	return removed
}

// snapshot returns the records under the read lock together with the time
// used to resolve relative ranges.
func (s *Store) snapshot() ([]shelltypes.OutputRecord, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]shelltypes.OutputRecord(nil), s.records...), s.now()
}
