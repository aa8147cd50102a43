package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"aceit.app/gateway"
	"aceit.app/pkg/coalesce"
	"aceit.app/pkg/ttlcache"
)

// metrics builds a gateway metrics response with the given cumulative counters.
func metrics(requests, throttled, hits, misses, upstream, upstreamErrs int64) *gateway.MetricsResponse {
	return &gateway.MetricsResponse{
		Registry: gateway.RegistryStats{
			Sessions:         3,
			Cache:            ttlcache.Stats{Hits: hits, Misses: misses},
			UpstreamRequests: upstream,
			UpstreamErrors:   upstreamErrs,
			Debouncers: map[string]coalesce.DebouncerStats{
				"topQuestions": {Name: "topQuestions", Calls: requests / 2, Coalesced: requests / 4},
			},
		},
		Requests:  requests,
		Throttled: throttled,
	}
}

// scriptedSource replays responses in order.
type scriptedSource struct {
	responses []*gateway.MetricsResponse
	err       error
}

func (s *scriptedSource) next(ctx context.Context) (*gateway.MetricsResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	m := s.responses[0]
	s.responses = s.responses[1:]
	return m, nil
}

func TestDiff_Rates(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := SnapshotFrom(metrics(100, 0, 40, 10, 50, 0), t0)
	cur := SnapshotFrom(metrics(200, 10, 70, 30, 100, 5), t0.Add(time.Minute))

	stats := Diff(prev, cur)

	if stats.Requests != 100 {
		t.Errorf("Expected 100 requests, got %d", stats.Requests)
	}
	if stats.CacheLookups != 50 {
		t.Errorf("Expected 50 lookups, got %d", stats.CacheLookups)
	}
	if stats.HitRate != 0.6 {
		t.Errorf("Expected hit rate 0.6, got %f", stats.HitRate)
	}
	if stats.ErrorRate != 0.1 {
		t.Errorf("Expected error rate 0.1, got %f", stats.ErrorRate)
	}
	if stats.ThrottleRate != 0.1 {
		t.Errorf("Expected throttle rate 0.1, got %f", stats.ThrottleRate)
	}
	if stats.CoalesceRatio != 0.5 {
		t.Errorf("Expected coalesce ratio 0.5, got %f", stats.CoalesceRatio)
	}
	if !stats.Start.Equal(t0) || stats.End.Sub(stats.Start) != time.Minute {
		t.Errorf("Unexpected window bounds %v - %v", stats.Start, stats.End)
	}
}

func TestDiff_SessionEndingMidWindow(t *testing.T) {
	// Counters include ended sessions, so a sweep between snapshots does not distort rates.
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := SnapshotFrom(metrics(500, 0, 1000, 10, 200, 0), t0)
	cur := SnapshotFrom(metrics(600, 0, 1050, 40, 350, 60), t0.Add(time.Minute))

	stats := Diff(prev, cur)

	if stats.CacheLookups != 80 || stats.HitRate != 0.625 {
		t.Errorf("Expected 80 lookups at 62.5%%, got %d at %f", stats.CacheLookups, stats.HitRate)
	}
	if stats.UpstreamRequests != 150 || stats.ErrorRate != 0.4 {
		t.Errorf("Expected 150 upstream requests at 40%%, got %d at %f", stats.UpstreamRequests, stats.ErrorRate)
	}

	am := NewAlertManager(clockwork.NewFakeClock())
	alerts := am.Evaluate(context.Background(), stats)
	if len(alerts) != 1 || alerts[0].Type != AlertUpstreamErrors {
		t.Errorf("Expected only the upstream error alert, got %+v", alerts)
	}
}

func TestDiff_GatewayRestart(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := SnapshotFrom(metrics(1000, 0, 500, 100, 300, 20), t0)
	cur := SnapshotFrom(metrics(40, 0, 30, 10, 20, 2), t0.Add(time.Minute))

	stats := Diff(prev, cur)

	if stats.Requests != 40 || stats.CacheLookups != 40 || stats.UpstreamRequests != 20 {
		t.Errorf("Expected the window to count from zero after a restart, got %+v", stats)
	}
	if stats.HitRate != 0.75 || stats.ErrorRate != 0.1 {
		t.Errorf("Unexpected rates after restart: hit %f error %f", stats.HitRate, stats.ErrorRate)
	}
}

func TestSlidingWindow_Wraparound(t *testing.T) {
	sw := NewSlidingWindow(3)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, ok := sw.Latest(); ok {
		t.Error("Empty window should have no latest snapshot")
	}

	for i := 0; i < 5; i++ {
		sw.Add(Snapshot{Timestamp: t0.Add(time.Duration(i) * time.Minute), Requests: int64(i)})
	}

	if sw.Len() != 3 {
		t.Errorf("Expected 3 snapshots, got %d", sw.Len())
	}
	latest, _ := sw.Latest()
	if latest.Requests != 4 {
		t.Errorf("Expected latest snapshot 4, got %d", latest.Requests)
	}

	all := sw.Since(time.Time{})
	if len(all) != 3 || all[0].Requests != 2 || all[2].Requests != 4 {
		t.Errorf("Expected snapshots 2..4 oldest first, got %+v", all)
	}

	recent := sw.Since(t0.Add(3 * time.Minute))
	if len(recent) != 2 {
		t.Errorf("Expected 2 recent snapshots, got %d", len(recent))
	}
}

func TestAlertManager_TriggerAndResolve(t *testing.T) {
	clock := clockwork.NewFakeClock()
	am := NewAlertManager(clock)
	ctx := context.Background()

	bad := WindowStats{UpstreamRequests: 50, UpstreamErrors: 25, ErrorRate: 0.5}

	triggered := am.Evaluate(ctx, bad)
	if len(triggered) != 1 || triggered[0].Type != AlertUpstreamErrors {
		t.Fatalf("Expected upstream error alert, got %+v", triggered)
	}

	// Still failing: no duplicate alert
	if again := am.Evaluate(ctx, bad); len(again) != 0 {
		t.Errorf("Expected no new alerts, got %d", len(again))
	}
	if active := am.GetActiveAlerts(); len(active) != 1 {
		t.Errorf("Expected 1 active alert, got %d", len(active))
	}

	clock.Advance(2 * time.Minute)
	am.Evaluate(ctx, WindowStats{UpstreamRequests: 50})

	if active := am.GetActiveAlerts(); len(active) != 0 {
		t.Errorf("Expected alert to resolve, got %d active", len(active))
	}
	resolved := am.GetRecentResolvedAlerts(10)
	if len(resolved) != 1 || !resolved[0].Resolved {
		t.Fatalf("Expected 1 resolved alert, got %+v", resolved)
	}
	if resolved[0].ResolvedAt.Sub(resolved[0].TriggeredAt) != 2*time.Minute {
		t.Errorf("Unexpected alert duration")
	}

	stats := am.GetStats()
	if stats.TotalTriggered != 1 || stats.TotalResolved != 1 {
		t.Errorf("Unexpected alert stats %+v", stats)
	}
}

func TestAlertRules_MinimumSample(t *testing.T) {
	tests := []struct {
		name  string
		rule  AlertRule
		stats WindowStats
		fires bool
	}{
		{"errors below sample", NewUpstreamErrorRule(0.1, 10), WindowStats{UpstreamRequests: 5, ErrorRate: 1}, false},
		{"errors above threshold", NewUpstreamErrorRule(0.1, 10), WindowStats{UpstreamRequests: 10, ErrorRate: 0.2}, true},
		{"hit rate below sample", NewLowHitRateRule(0.3, 20), WindowStats{CacheLookups: 10}, false},
		{"hit rate low", NewLowHitRateRule(0.3, 20), WindowStats{CacheLookups: 40, HitRate: 0.1}, true},
		{"hit rate healthy", NewLowHitRateRule(0.3, 20), WindowStats{CacheLookups: 40, HitRate: 0.8}, false},
		{"throttling", NewThrottleRule(0.05, 20), WindowStats{Requests: 100, ThrottleRate: 0.2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := tt.rule.Evaluate(tt.stats)
			if (alert != nil) != tt.fires {
				t.Errorf("Expected fires=%v, got %+v", tt.fires, alert)
			}
			if alert != nil && alert.ID != tt.rule.ID() {
				t.Errorf("Alert ID %s does not match rule %s", alert.ID, tt.rule.ID())
			}
		})
	}
}

func TestService_CollectEvaluatesAlerts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &scriptedSource{responses: []*gateway.MetricsResponse{
		metrics(0, 0, 0, 0, 0, 0),
		metrics(100, 0, 80, 20, 40, 20),
		metrics(200, 0, 160, 40, 80, 20),
	}}
	s := initService(DefaultConfig(), clock, source.next)
	ctx := context.Background()

	if alerts, err := s.collect(ctx); err != nil || len(alerts) != 0 {
		t.Fatalf("First snapshot should only seed the window, got %v %v", alerts, err)
	}

	clock.Advance(time.Minute)
	alerts, err := s.collect(ctx)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != AlertUpstreamErrors {
		t.Fatalf("Expected upstream error alert, got %+v", alerts)
	}

	clock.Advance(time.Minute)
	if _, err := s.collect(ctx); err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	resp, err := s.GetAlerts(ctx)
	if err != nil {
		t.Fatalf("GetAlerts failed: %v", err)
	}
	if len(resp.Active) != 0 || len(resp.Resolved) != 1 {
		t.Errorf("Expected the alert to resolve, got %d active and %d resolved", len(resp.Active), len(resp.Resolved))
	}
	if resp.Stats.SnapshotsTaken != 3 {
		t.Errorf("Expected 3 snapshots taken, got %d", resp.Stats.SnapshotsTaken)
	}
}

func TestService_CollectFailure(t *testing.T) {
	s := initService(DefaultConfig(), clockwork.NewFakeClock(), (&scriptedSource{err: errors.New("gateway down")}).next)

	if _, err := s.collect(context.Background()); err == nil {
		t.Fatal("Expected collect to fail")
	}

	resp, _ := s.GetAlerts(context.Background())
	if resp.Stats.SnapshotsFailed != 1 {
		t.Errorf("Expected 1 failed snapshot, got %d", resp.Stats.SnapshotsFailed)
	}
}

func TestService_GetStatsWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &scriptedSource{}
	for i := int64(0); i <= 20; i++ {
		source.responses = append(source.responses, metrics(i*10, 0, i*10, 0, i*5, 0))
	}
	s := initService(DefaultConfig(), clock, source.next)
	ctx := context.Background()

	for i := 0; i <= 20; i++ {
		if _, err := s.collect(ctx); err != nil {
			t.Fatalf("collect failed: %v", err)
		}
		clock.Advance(time.Minute)
	}

	// Snapshots at minutes 0..20; now is minute 21.
	resp, err := s.GetStats(ctx, &GetStatsRequest{Minutes: 5})
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if resp.Snapshots != 5 {
		t.Errorf("Expected 5 snapshots in window, got %d", resp.Snapshots)
	}
	if resp.Stats.Requests != 40 {
		t.Errorf("Expected 40 requests across the window, got %d", resp.Stats.Requests)
	}

	resp, _ = s.GetStats(ctx, &GetStatsRequest{})
	if resp.Snapshots != 10 {
		t.Errorf("Expected default window of 10 snapshots, got %d", resp.Snapshots)
	}
}
