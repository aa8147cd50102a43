package monitoring

import (
	"sync"
	"time"

	"aceit.app/gateway"
)

// Snapshot is one reading of the gateway's cumulative counters.
type Snapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	Sessions         int       `json:"sessions"`
	Requests         int64     `json:"requests"`
	Failures         int64     `json:"failures"`
	Canceled         int64     `json:"canceled"`
	Throttled        int64     `json:"throttled"`
	CacheHits        int64     `json:"cache_hits"`
	CacheMisses      int64     `json:"cache_misses"`
	UpstreamRequests int64     `json:"upstream_requests"`
	UpstreamErrors   int64     `json:"upstream_errors"`
	CoalesceCalls    int64     `json:"coalesce_calls"`
	Coalesced        int64     `json:"coalesced"`
}

// SnapshotFrom flattens a gateway metrics response taken at the given time.
func SnapshotFrom(m *gateway.MetricsResponse, at time.Time) Snapshot {
	s := Snapshot{
		Timestamp:        at,
		Sessions:         m.Registry.Sessions,
		Requests:         m.Requests,
		Failures:         m.Failures,
		Canceled:         m.Canceled,
		Throttled:        m.Throttled,
		CacheHits:        m.Registry.Cache.Hits,
		CacheMisses:      m.Registry.Cache.Misses,
		UpstreamRequests: m.Registry.UpstreamRequests,
		UpstreamErrors:   m.Registry.UpstreamErrors,
	}
	for _, d := range m.Registry.Debouncers {
		s.CoalesceCalls += d.Calls
		s.Coalesced += d.Coalesced
	}
	return s
}

// WindowStats summarizes activity between two snapshots.
type WindowStats struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Sessions         int       `json:"sessions"`
	Requests         int64     `json:"requests"`
	Failures         int64     `json:"failures"`
	Throttled        int64     `json:"throttled"`
	CacheLookups     int64     `json:"cache_lookups"`
	UpstreamRequests int64     `json:"upstream_requests"`
	UpstreamErrors   int64     `json:"upstream_errors"`
	HitRate          float64   `json:"hit_rate"`
	ErrorRate        float64   `json:"error_rate"`
	ThrottleRate     float64   `json:"throttle_rate"`
	CoalesceRatio    float64   `json:"coalesce_ratio"`
}

// Diff computes the activity from prev to cur.
//
// The gateway's counters only grow while it runs, so a counter below its previous value
// means the gateway restarted; the window then counts everything in cur.
func Diff(prev, cur Snapshot) WindowStats {
	base := prev
	if restarted(prev, cur) {
		base = Snapshot{Timestamp: prev.Timestamp}
	}

	hits := cur.CacheHits - base.CacheHits
	misses := cur.CacheMisses - base.CacheMisses

	stats := WindowStats{
		Start:            prev.Timestamp,
		End:              cur.Timestamp,
		Sessions:         cur.Sessions,
		Requests:         cur.Requests - base.Requests,
		Failures:         cur.Failures - base.Failures,
		Throttled:        cur.Throttled - base.Throttled,
		CacheLookups:     hits + misses,
		UpstreamRequests: cur.UpstreamRequests - base.UpstreamRequests,
		UpstreamErrors:   cur.UpstreamErrors - base.UpstreamErrors,
	}

	stats.HitRate = ratio(hits, hits+misses)
	stats.ErrorRate = ratio(stats.UpstreamErrors, stats.UpstreamRequests)
	stats.ThrottleRate = ratio(stats.Throttled, stats.Requests)
	stats.CoalesceRatio = ratio(cur.Coalesced-base.Coalesced, cur.CoalesceCalls-base.CoalesceCalls)
	return stats
}

func restarted(prev, cur Snapshot) bool {
	return cur.Requests < prev.Requests ||
		cur.Failures < prev.Failures ||
		cur.Throttled < prev.Throttled ||
		cur.CacheHits < prev.CacheHits ||
		cur.CacheMisses < prev.CacheMisses ||
		cur.UpstreamRequests < prev.UpstreamRequests ||
		cur.UpstreamErrors < prev.UpstreamErrors ||
		cur.CoalesceCalls < prev.CoalesceCalls ||
		cur.Coalesced < prev.Coalesced
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// SlidingWindow keeps the most recent snapshots in a circular buffer.
type SlidingWindow struct {
	mu       sync.RWMutex
	buffer   []Snapshot
	capacity int
	head     int
	count    int
}

// NewSlidingWindow creates a window holding up to capacity snapshots.
func NewSlidingWindow(capacity int) *SlidingWindow {
	if capacity < 2 {
		capacity = 2
	}
	return &SlidingWindow{
		buffer:   make([]Snapshot, capacity),
		capacity: capacity,
	}
}

// Add appends a snapshot, overwriting the oldest once full.
// Complexity: O(1).
func (sw *SlidingWindow) Add(s Snapshot) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.buffer[sw.head] = s
	sw.head = (sw.head + 1) % sw.capacity
	if sw.count < sw.capacity {
		sw.count++
	}
}

// Latest returns the most recent snapshot.
func (sw *SlidingWindow) Latest() (Snapshot, bool) {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if sw.count == 0 {
		return Snapshot{}, false
	}
	return sw.buffer[(sw.head-1+sw.capacity)%sw.capacity], true
}

// Since returns the snapshots taken at or after start, oldest first.
func (sw *SlidingWindow) Since(start time.Time) []Snapshot {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	result := make([]Snapshot, 0, sw.count)
	oldest := (sw.head - sw.count + sw.capacity) % sw.capacity
	for i := 0; i < sw.count; i++ {
		s := sw.buffer[(oldest+i)%sw.capacity]
		if !s.Timestamp.Before(start) {
			result = append(result, s)
		}
	}
	return result
}

// Len returns the number of stored snapshots.
func (sw *SlidingWindow) Len() int {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.count
}
