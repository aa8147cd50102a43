// Package monitoring watches the gateway's session caches and upstream traffic.
//
// A cron job snapshots the gateway's cumulative counters every minute. Consecutive
// snapshots are diffed into window stats, which feed the alert rules and the
// /monitoring endpoints.
package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"encore.dev/cron"
	"github.com/jonboulle/clockwork"

	"aceit.app/gateway"
	"aceit.app/pkg/logging"
)

//encore:service
type Service struct {
	config  Config
	clock   clockwork.Clock
	source  MetricsSource
	window  *SlidingWindow
	alerts  *AlertManager
	failed  atomic.Int64
	success atomic.Int64
}

// Config holds monitoring service configuration.
type Config struct {
	Retention      time.Duration // How long snapshots are kept
	SnapshotPeriod time.Duration // Expected spacing of snapshots
	DefaultWindow  time.Duration // Window used when a request does not name one
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Retention:      1 * time.Hour,
		SnapshotPeriod: 1 * time.Minute,
		DefaultWindow:  10 * time.Minute,
	}
}

// MetricsSource reads the gateway's current counters.
type MetricsSource func(ctx context.Context) (*gateway.MetricsResponse, error)

// Global service instance
var svc *Service

// initService initializes the monitoring service.
func initService(cfg Config, clock clockwork.Clock, source MetricsSource) *Service {
	capacity := int(cfg.Retention/cfg.SnapshotPeriod) + 1
	return &Service{
		config: cfg,
		clock:  clock,
		source: source,
		window: NewSlidingWindow(capacity),
		alerts: NewAlertManager(clock),
	}
}

func init() {
	svc = initService(DefaultConfig(), clockwork.NewRealClock(), gateway.GetMetrics)
}

// Snapshots the gateway once a minute.
var _ = cron.NewJob("metrics-snapshot", cron.JobConfig{
	Title:    "Gateway Metrics Snapshot",
	Schedule: "* * * * *",
	Endpoint: CollectSnapshot,
})

//encore:api private
func CollectSnapshot(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	ctx, _ = logging.EnsureRequestID(ctx)
	_, err := svc.collect(ctx)
	return err
}

// collect takes a snapshot and evaluates alerts against the change since the last one.
func (s *Service) collect(ctx context.Context) ([]Alert, error) {
	m, err := s.source(ctx)
	if err != nil {
		s.failed.Add(1)
		logging.Error(ctx, "Failed to read gateway metrics", err, nil)
		return nil, err
	}
	s.success.Add(1)

	snap := SnapshotFrom(m, s.clock.Now())
	prev, ok := s.window.Latest()
	s.window.Add(snap)
	if !ok {
		return nil, nil
	}
	return s.alerts.Evaluate(ctx, Diff(prev, snap)), nil
}

// Request and response types for API endpoints.

type GetStatsRequest struct {
	Minutes int `query:"minutes"` // Window length, defaults to ten minutes
}

type GetStatsResponse struct {
	Stats     WindowStats `json:"stats"`
	Snapshots int         `json:"snapshots"`
}

type GetAlertsResponse struct {
	Active   []Alert    `json:"active"`
	Resolved []Alert    `json:"resolved"`
	Stats    AlertStats `json:"stats"`
}

// AlertStats summarizes alerting and collection activity.
type AlertStats struct {
	Active          int   `json:"active"`
	TotalTriggered  int64 `json:"total_triggered"`
	TotalResolved   int64 `json:"total_resolved"`
	SnapshotsTaken  int64 `json:"snapshots_taken"`
	SnapshotsFailed int64 `json:"snapshots_failed"`
}

// GetStats returns activity over the most recent window.
//
//encore:api public method=GET path=/monitoring/stats
func GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetStats(ctx, req)
}

func (s *Service) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	window := s.config.DefaultWindow
	if req.Minutes > 0 {
		window = time.Duration(req.Minutes) * time.Minute
	}

	snaps := s.window.Since(s.clock.Now().Add(-window))
	resp := &GetStatsResponse{Snapshots: len(snaps)}
	if len(snaps) >= 2 {
		resp.Stats = Diff(snaps[0], snaps[len(snaps)-1])
	} else if len(snaps) == 1 {
		resp.Stats = WindowStats{Start: snaps[0].Timestamp, End: snaps[0].Timestamp, Sessions: snaps[0].Sessions}
	}
	return resp, nil
}

// GetAlerts returns active alerts and the most recently resolved ones.
//
//encore:api public method=GET path=/monitoring/alerts
func GetAlerts(ctx context.Context) (*GetAlertsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetAlerts(ctx)
}

func (s *Service) GetAlerts(ctx context.Context) (*GetAlertsResponse, error) {
	stats := s.alerts.GetStats()
	stats.SnapshotsTaken = s.success.Load()
	stats.SnapshotsFailed = s.failed.Load()

	return &GetAlertsResponse{
		Active:   s.alerts.GetActiveAlerts(),
		Resolved: s.alerts.GetRecentResolvedAlerts(20),
		Stats:    stats,
	}, nil
}
