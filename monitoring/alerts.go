package monitoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"aceit.app/pkg/logging"
)

// maxResolvedAlerts bounds the resolved alert history.
const maxResolvedAlerts = 100

// AlertManager evaluates alert rules against window stats and tracks active alerts.
// An alert resolves on the first evaluation where its rule no longer fires.
type AlertManager struct {
	clock clockwork.Clock
	rules []AlertRule

	mu             sync.RWMutex
	activeAlerts   map[string]*Alert
	resolvedAlerts []Alert

	stats AlertManagerStats
}

// AlertManagerStats tracks alert manager statistics.
type AlertManagerStats struct {
	TotalTriggered atomic.Int64
	TotalResolved  atomic.Int64
}

// Alert represents an active or resolved alert.
type Alert struct {
	ID           string     `json:"id"`
	Type         AlertType  `json:"type"`
	Severity     string     `json:"severity"`
	Metric       string     `json:"metric"`
	CurrentValue float64    `json:"current_value"`
	Threshold    float64    `json:"threshold"`
	Message      string     `json:"message"`
	TriggeredAt  time.Time  `json:"triggered_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	Resolved     bool       `json:"resolved"`
}

// AlertType represents the category of alert.
type AlertType string

const (
	AlertUpstreamErrors AlertType = "upstream_errors"
	AlertLowHitRate     AlertType = "low_hit_rate"
	AlertThrottling     AlertType = "throttling"
)

// AlertRule decides whether stats warrant an alert. Evaluate returns nil when healthy.
type AlertRule interface {
	ID() string
	Evaluate(stats WindowStats) *Alert
}

// NewAlertManager creates an alert manager with the default rules.
func NewAlertManager(clock clockwork.Clock) *AlertManager {
	return &AlertManager{
		clock:        clock,
		activeAlerts: make(map[string]*Alert),
		rules: []AlertRule{
			NewUpstreamErrorRule(0.10, 10),
			NewLowHitRateRule(0.30, 20),
			NewThrottleRule(0.05, 20),
		},
	}
}

// Evaluate runs every rule and returns the alerts that fired for the first time.
func (am *AlertManager) Evaluate(ctx context.Context, stats WindowStats) []Alert {
	var triggered []Alert
	for _, rule := range am.rules {
		alert := rule.Evaluate(stats)
		if alert != nil {
			if am.trigger(ctx, alert) {
				triggered = append(triggered, *alert)
			}
		} else {
			am.resolve(ctx, rule.ID())
		}
	}
	return triggered
}

// trigger records alert unless it is already active, in which case its value is refreshed.
func (am *AlertManager) trigger(ctx context.Context, alert *Alert) bool {
	am.mu.Lock()
	if existing, ok := am.activeAlerts[alert.ID]; ok {
		existing.CurrentValue = alert.CurrentValue
		existing.Message = alert.Message
		am.mu.Unlock()
		return false
	}
	alert.TriggeredAt = am.clock.Now()
	am.activeAlerts[alert.ID] = alert
	am.mu.Unlock()

	am.stats.TotalTriggered.Add(1)
	logging.Warn(ctx, "Alert triggered", logging.Fields{
		"alert":     alert.ID,
		"severity":  alert.Severity,
		"value":     alert.CurrentValue,
		"threshold": alert.Threshold,
	})
	return true
}

func (am *AlertManager) resolve(ctx context.Context, id string) {
	am.mu.Lock()
	alert, ok := am.activeAlerts[id]
	if !ok {
		am.mu.Unlock()
		return
	}
	delete(am.activeAlerts, id)

	now := am.clock.Now()
	alert.ResolvedAt = &now
	alert.Resolved = true
	am.resolvedAlerts = append(am.resolvedAlerts, *alert)
	if len(am.resolvedAlerts) > maxResolvedAlerts {
		am.resolvedAlerts = am.resolvedAlerts[len(am.resolvedAlerts)-maxResolvedAlerts:]
	}
	am.mu.Unlock()

	am.stats.TotalResolved.Add(1)
	logging.Info(ctx, "Alert resolved", logging.Fields{
		"alert":    id,
		"duration": now.Sub(alert.TriggeredAt).String(),
	})
}

// GetActiveAlerts returns active alerts ordered by ID.
func (am *AlertManager) GetActiveAlerts() []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]Alert, 0, len(am.activeAlerts))
	for _, a := range am.activeAlerts {
		alerts = append(alerts, *a)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts
}

// GetRecentResolvedAlerts returns up to n resolved alerts, newest first.
func (am *AlertManager) GetRecentResolvedAlerts(n int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if n > len(am.resolvedAlerts) {
		n = len(am.resolvedAlerts)
	}
	out := make([]Alert, 0, n)
	for i := len(am.resolvedAlerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, am.resolvedAlerts[i])
	}
	return out
}

// GetStats returns alert counters.
func (am *AlertManager) GetStats() AlertStats {
	am.mu.RLock()
	active := len(am.activeAlerts)
	am.mu.RUnlock()

	return AlertStats{
		Active:         active,
		TotalTriggered: am.stats.TotalTriggered.Load(),
		TotalResolved:  am.stats.TotalResolved.Load(),
	}
}

// UpstreamErrorRule fires when too many upstream calls fail.
type UpstreamErrorRule struct {
	threshold   float64
	minRequests int64
}

func NewUpstreamErrorRule(threshold float64, minRequests int64) *UpstreamErrorRule {
	return &UpstreamErrorRule{threshold: threshold, minRequests: minRequests}
}

func (r *UpstreamErrorRule) ID() string {
	return string(AlertUpstreamErrors)
}

func (r *UpstreamErrorRule) Evaluate(stats WindowStats) *Alert {
	if stats.UpstreamRequests < r.minRequests || stats.ErrorRate <= r.threshold {
		return nil
	}
	return &Alert{
		ID:           r.ID(),
		Type:         AlertUpstreamErrors,
		Severity:     "critical",
		Metric:       "error_rate",
		CurrentValue: stats.ErrorRate,
		Threshold:    r.threshold,
		Message:      fmt.Sprintf("Upstream error rate %.2f%% exceeds threshold %.2f%%", stats.ErrorRate*100, r.threshold*100),
	}
}

// LowHitRateRule fires when the session caches stop absorbing reads.
type LowHitRateRule struct {
	threshold  float64
	minLookups int64
}

func NewLowHitRateRule(threshold float64, minLookups int64) *LowHitRateRule {
	return &LowHitRateRule{threshold: threshold, minLookups: minLookups}
}

func (r *LowHitRateRule) ID() string {
	return string(AlertLowHitRate)
}

func (r *LowHitRateRule) Evaluate(stats WindowStats) *Alert {
	if stats.CacheLookups < r.minLookups || stats.HitRate >= r.threshold {
		return nil
	}
	return &Alert{
		ID:           r.ID(),
		Type:         AlertLowHitRate,
		Severity:     "warning",
		Metric:       "hit_rate",
		CurrentValue: stats.HitRate,
		Threshold:    r.threshold,
		Message:      fmt.Sprintf("Cache hit rate %.2f%% below threshold %.2f%%", stats.HitRate*100, r.threshold*100),
	}
}

// ThrottleRule fires when sessions keep hitting their request limit.
type ThrottleRule struct {
	threshold   float64
	minRequests int64
}

func NewThrottleRule(threshold float64, minRequests int64) *ThrottleRule {
	return &ThrottleRule{threshold: threshold, minRequests: minRequests}
}

func (r *ThrottleRule) ID() string {
	return string(AlertThrottling)
}

func (r *ThrottleRule) Evaluate(stats WindowStats) *Alert {
	if stats.Requests < r.minRequests || stats.ThrottleRate <= r.threshold {
		return nil
	}
	return &Alert{
		ID:           r.ID(),
		Type:         AlertThrottling,
		Severity:     "warning",
		Metric:       "throttle_rate",
		CurrentValue: stats.ThrottleRate,
		Threshold:    r.threshold,
		Message:      fmt.Sprintf("%.2f%% of requests throttled", stats.ThrottleRate*100),
	}
}
