package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"aceit.app/pkg/coalesce"
	"aceit.app/pkg/pubsub"
	"aceit.app/pkg/studyapi"
	"aceit.app/pkg/ttlcache"
)

// session is one user's API client and when it was last used.
type session struct {
	id       string
	client   *studyapi.Client
	lastUsed time.Time
}

// ClientFactory builds the API client of a new session.
type ClientFactory func(id, accessToken string) *studyapi.Client

// SessionRegistry maps access tokens to sessions. Sessions are keyed by
// pubsub.SessionID(token) so reset events can name them without carrying the token.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  ClientFactory
	clock    clockwork.Clock
	max      int

	// retired holds the counters of ended sessions so totals never go backwards.
	retired RegistryStats
}

// NewSessionRegistry creates a registry holding at most maxSessions sessions; the least recently
// used session is dropped to make room.
func NewSessionRegistry(factory ClientFactory, clock clockwork.Clock, maxSessions int) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session),
		factory:  factory,
		clock:    clock,
		max:      maxSessions,
		retired:  RegistryStats{Debouncers: make(map[string]coalesce.DebouncerStats)},
	}
}

// Get returns the client for accessToken, creating the session on first use.
func (r *SessionRegistry) Get(accessToken string) *studyapi.Client {
	id := pubsub.SessionID(accessToken)
	now := r.clock.Now()

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.lastUsed = now
		r.mu.Unlock()
		return s.client
	}

	var evicted *session
	if r.max > 0 && len(r.sessions) >= r.max {
		evicted = r.oldestLocked()
		r.retireLocked(evicted)
	}

	s := &session{
		id:       id,
		client:   r.factory(id, accessToken),
		lastUsed: now,
	}
	r.sessions[id] = s
	r.mu.Unlock()

	if evicted != nil {
		evicted.client.Logout(context.Background())
	}
	return s.client
}

func (r *SessionRegistry) oldestLocked() *session {
	var oldest *session
	for _, s := range r.sessions {
		if oldest == nil || s.lastUsed.Before(oldest.lastUsed) {
			oldest = s
		}
	}
	return oldest
}

// retireLocked removes s and folds its counters into the retired totals.
func (r *SessionRegistry) retireLocked(s *session) {
	delete(r.sessions, s.id)
	r.retired.add(s.client.Stats())
}

// Drop ends the session with the given id. It reports whether the session existed.
func (r *SessionRegistry) Drop(ctx context.Context, id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		r.retireLocked(s)
	}
	r.mu.Unlock()

	if ok {
		s.client.Logout(ctx)
	}
	return ok
}

// Sweep drops sessions unused for longer than idle and returns their ids.
func (r *SessionRegistry) Sweep(ctx context.Context, idle time.Duration) []string {
	cutoff := r.clock.Now().Add(-idle)

	r.mu.Lock()
	var expired []*session
	for _, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			expired = append(expired, s)
			r.retireLocked(s)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		s.client.Logout(ctx)
		ids = append(ids, s.id)
	}
	sort.Strings(ids)
	return ids
}

// Each calls fn for every live session client.
func (r *SessionRegistry) Each(fn func(c *studyapi.Client)) {
	r.mu.Lock()
	clients := make([]*studyapi.Client, 0, len(r.sessions))
	for _, s := range r.sessions {
		clients = append(clients, s.client)
	}
	r.mu.Unlock()

	for _, c := range clients {
		fn(c)
	}
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RegistryStats aggregates session statistics. Counters include sessions that have
// ended, so they only grow for the life of the process; Sessions and Cache.Size are
// current values.
type RegistryStats struct {
	Sessions         int                                `json:"sessions"`
	Cache            ttlcache.Stats                     `json:"cache"`
	Debouncers       map[string]coalesce.DebouncerStats `json:"debouncers"`
	Superseded       int64                              `json:"superseded"`
	UpstreamRequests int64                              `json:"upstream_requests"`
	UpstreamErrors   int64                              `json:"upstream_errors"`
}

// add sums one session's counters into out. Cache.Size is left to the caller.
func (out *RegistryStats) add(st studyapi.Stats) {
	out.Cache.Hits += st.Cache.Hits
	out.Cache.Misses += st.Cache.Misses
	out.Cache.Sets += st.Cache.Sets
	out.Cache.Expirations += st.Cache.Expirations
	out.Cache.Clears += st.Cache.Clears

	for _, d := range st.Debouncers {
		agg := out.Debouncers[d.Name]
		agg.Name = d.Name
		agg.Calls += d.Calls
		agg.Executions += d.Executions
		agg.Coalesced += d.Coalesced
		agg.Failures += d.Failures
		out.Debouncers[d.Name] = agg
	}
	for _, sc := range st.Scopes {
		out.Superseded += sc.Superseded
	}

	out.UpstreamRequests += st.UpstreamRequests
	out.UpstreamErrors += st.UpstreamErrors
}

// Stats sums cache, coalescer and upstream counters over live and ended sessions.
func (r *SessionRegistry) Stats() RegistryStats {
	r.mu.Lock()
	out := r.retired
	out.Debouncers = make(map[string]coalesce.DebouncerStats, len(r.retired.Debouncers))
	for name, d := range r.retired.Debouncers {
		out.Debouncers[name] = d
	}
	clients := make([]*studyapi.Client, 0, len(r.sessions))
	for _, s := range r.sessions {
		clients = append(clients, s.client)
	}
	r.mu.Unlock()

	for _, c := range clients {
		st := c.Stats()
		out.add(st)
		out.Sessions++
		out.Cache.Size += st.Cache.Size
	}

	if total := out.Cache.Hits + out.Cache.Misses; total > 0 {
		out.Cache.HitRate = float64(out.Cache.Hits) / float64(total)
	}
	return out
}
