package shellintegration

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"shellpilot/internal/logger"
)

// Negotiation defaults
const (
	DefaultProtocolTTL      = 5 * time.Minute
	DefaultHandshakeTimeout = 3 * time.Second
)

// NegotiationState names a step of protocol negotiation.
type NegotiationState string

// Negotiation states, in the order they can be visited.
const (
	CheckingCache       NegotiationState = "checking-cache"
	CacheHitSupported   NegotiationState = "cache-hit-supported"
	CacheHitUnsupported NegotiationState = "cache-hit-unsupported"
	CacheMiss           NegotiationState = "cache-miss"
	WaitingForHandshake NegotiationState = "waiting-for-handshake"
	NegotiatedSupported NegotiationState = "negotiated-supported"
	NegotiationTimedOut NegotiationState = "negotiation-timed-out"
)

// ProtocolKey identifies a shell configuration.
type ProtocolKey struct {
	ShellKind string
	ShellPath string
}

func (k ProtocolKey) String() string {
	return k.ShellKind + "|" + k.ShellPath
}

// CacheEntry is a memorized negotiation outcome.
type CacheEntry struct {
	Key         ProtocolKey
	Supported   bool
	LastChecked time.Time
}

// Outcome is the result of one Negotiate call. Trace lists every state
// visited, ending in the terminal one that State repeats.
type Outcome struct {
	State     NegotiationState
	Supported bool
	FromCache bool
	Trace     []NegotiationState
}

// Negotiator decides whether the rich completion protocol is usable for a
// shell configuration and caches the answer for a TTL.
type Negotiator struct {
	mutex   sync.Mutex
	cache   map[ProtocolKey]CacheEntry
	group   singleflight.Group
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithClock replaces the wall clock used for cache timestamps.
func WithClock(now func() time.Time) NegotiatorOption {
	return func(n *Negotiator) {
		n.now = now
	}
}

// NewNegotiator creates a negotiator. Non-positive durations select the defaults.
func NewNegotiator(ttl, handshakeTimeout time.Duration, opts ...NegotiatorOption) *Negotiator {
	if ttl <= 0 {
		ttl = DefaultProtocolTTL
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	n := &Negotiator{
		cache:   make(map[ProtocolKey]CacheEntry),
		ttl:     ttl,
		timeout: handshakeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Negotiate consults the cache for key and, on a miss, waits up to the
// handshake timeout for handshake to be closed. Both outcomes of a live
// handshake are cached. Concurrent misses for the same key share one wait, but
// every caller still honours its own handshake: a shared timeout does not
// override a terminal that announces integration within its own timeout.
// The only error is ctx's, in which case nothing new is cached by this caller.
func (n *Negotiator) Negotiate(ctx context.Context, key ProtocolKey, handshake <-chan struct{}) (Outcome, error) {
	log := logger.NewStyledLogger("Negotiator")
	trace := []NegotiationState{CheckingCache}

	if entry, ok := n.Lookup(key); ok {
		state := CacheHitUnsupported
		if entry.Supported {
			state = CacheHitSupported
		}
		log.Debug("Protocol cache hit", "shell", key.ShellKind, "path", key.ShellPath, "supported", entry.Supported)
		return Outcome{State: state, Supported: entry.Supported, FromCache: true, Trace: append(trace, state)}, nil
	}

	trace = append(trace, CacheMiss, WaitingForHandshake)
	log.Debug("Waiting for shell integration", "shell", key.ShellKind, "path", key.ShellPath, "timeout", n.timeout)

	started := time.Now()
	result := n.group.DoChan(key.String(), func() (interface{}, error) {
		return n.awaitHandshake(key, handshake), nil
	})

	finish := func(supported, shared bool) (Outcome, error) {
		state := NegotiationTimedOut
		if supported {
			state = NegotiatedSupported
		}
		log.Debug("Negotiation finished", "shell", key.ShellKind, "state", state, "shared", shared)
		return Outcome{State: state, Supported: supported, Trace: append(trace, state)}, nil
	}

	select {
	case <-handshake:
		n.Record(key, true)
		return finish(true, false)
	case r := <-result:
		if r.Val.(bool) {
			return finish(true, r.Shared)
		}
	case <-ctx.Done():
		return Outcome{Trace: trace}, ctx.Err()
	}

	// The shared wait timed out, possibly on another caller's terminal. This
	// caller's own handshake keeps the rest of its timeout.
	remaining := n.timeout - time.Since(started)
	if remaining <= 0 {
		select {
		case <-handshake:
			n.Record(key, true)
			return finish(true, true)
		default:
			return finish(false, true)
		}
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-handshake:
		n.Record(key, true)
		return finish(true, true)
	case <-timer.C:
		return finish(false, true)
	case <-ctx.Done():
		return Outcome{Trace: trace}, ctx.Err()
	}
}

func (n *Negotiator) awaitHandshake(key ProtocolKey, handshake <-chan struct{}) bool {
	since := n.now()
	timer := time.NewTimer(n.timeout)
	defer timer.Stop()

	select {
	case <-handshake:
		n.Record(key, true)
		return true
	case <-timer.C:
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()
	// a concurrent caller whose terminal announced integration wins
	if entry, ok := n.cache[key]; ok && entry.Supported && !entry.LastChecked.Before(since) {
		return false
	}
	n.cache[key] = CacheEntry{Key: key, Supported: false, LastChecked: n.now()}
	return false
}

// Lookup returns the cache entry for key if it is younger than the TTL.
func (n *Negotiator) Lookup(key ProtocolKey) (CacheEntry, bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	entry, ok := n.cache[key]
	if !ok {
		return CacheEntry{}, false
	}
	if n.now().Sub(entry.LastChecked) > n.ttl {
		return CacheEntry{}, false
	}
	return entry, true
}

// Record stores a negotiation outcome for key, stamped with the current time.
func (n *Negotiator) Record(key ProtocolKey, supported bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.cache[key] = CacheEntry{Key: key, Supported: supported, LastChecked: n.now()}
}

// Invalidate forgets the outcome for key.
func (n *Negotiator) Invalidate(key ProtocolKey) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.cache, key)
}

// Entries returns all cache entries, stale ones included, sorted by key.
func (n *Negotiator) Entries() []CacheEntry {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	entries := make([]CacheEntry, 0, len(n.cache))
	for _, e := range n.cache {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})
	return entries
}

// Clear empties the cache. Negotiations already waiting still record their
// result when they finish.
func (n *Negotiator) Clear() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.cache = make(map[ProtocolKey]CacheEntry)
}

// TTL returns the cache lifetime.
func (n *Negotiator) TTL() time.Duration {
	return n.ttl
}
