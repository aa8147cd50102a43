// Package gateway serves the study-assistant UI API on top of per-session API clients.
//
// Every request carries the user's access token in the Authorization header. The token
// selects a session from the registry, created on first use, whose studyapi.Client holds
// the session's read cache and coalesces its analytics calls. Sessions end on logout, on an
// upstream 401 or after sitting idle; logout and 401 resets are broadcast so every
// instance drops its copy.
package gateway

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"encore.dev/beta/errs"
	"github.com/jonboulle/clockwork"

	"aceit.app/pkg/logging"
	"aceit.app/pkg/middleware"
	"aceit.app/pkg/pubsub"
	"aceit.app/pkg/studyapi"
)

// serviceName identifies this service in published events.
const serviceName = "gateway"

//encore:service
type Service struct {
	config   Config
	clock    clockwork.Clock
	sessions *SessionRegistry
	limiter  *middleware.KeyedLimiter
	events   EventPublisher
	metrics  *Metrics
}

// Config holds runtime configuration for the gateway.
type Config struct {
	API                studyapi.Config `json:"api"`                  // Upstream client settings
	SessionIdleTimeout time.Duration   `json:"session_idle_timeout"` // Idle sessions older than this are swept
	MaxSessions        int             `json:"max_sessions"`         // Registry capacity
	SessionRPS         float64         `json:"session_rps"`          // Inbound requests per second per session
	SessionBurst       int             `json:"session_burst"`        // Inbound burst per session
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		API:                studyapi.DefaultConfig(),
		SessionIdleTimeout: 30 * time.Minute,
		MaxSessions:        10000,
		SessionRPS:         10,
		SessionBurst:       20,
	}
}

// Environment variables overriding Config.
const (
	EnvSessionIdleTimeout = "SESSION_IDLE_TIMEOUT"
	EnvSessionRPS         = "SESSION_MAX_RPS"
)

// LoadConfig reads the upstream settings and the gateway's own overrides.
func LoadConfig() (Config, error) {
	api, err := studyapi.LoadConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.API = api

	if v := os.Getenv(EnvSessionIdleTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvSessionIdleTimeout, err)
		}
		cfg.SessionIdleTimeout = d
	}
	if v := os.Getenv(EnvSessionRPS); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", EnvSessionRPS, v)
		}
		cfg.SessionRPS = rps
	}
	return cfg, nil
}

// Metrics counts gateway traffic.
type Metrics struct {
	Requests    atomic.Int64
	Failures    atomic.Int64
	Canceled    atomic.Int64
	Throttled   atomic.Int64
	Resets      atomic.Int64
	SweptIdle   atomic.Int64
	EventErrors atomic.Int64
}

// Global service instance
var svc *Service

// initService initializes the gateway with cfg and the given clock.
func initService(cfg Config, clock clockwork.Clock, events EventPublisher) *Service {
	s := &Service{
		config:  cfg,
		clock:   clock,
		events:  events,
		metrics: &Metrics{},
	}
	s.sessions = NewSessionRegistry(s.newClient, clock, cfg.MaxSessions)
	s.limiter = middleware.NewKeyedLimiter(cfg.SessionRPS, cfg.SessionBurst, clock)
	return s
}

func init() {
	cfg, err := LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load gateway config: %v", err))
	}
	svc = initService(cfg, clockwork.NewRealClock(), topicPublisher{})
}

// newClient builds the API client of a new session. An upstream 401 resets the session.
func (s *Service) newClient(id, accessToken string) *studyapi.Client {
	return studyapi.New(s.config.API,
		studyapi.WithClock(s.clock),
		studyapi.WithAccessToken(accessToken),
		studyapi.OnUnauthorized(func() {
			ctx, _ := logging.EnsureRequestID(context.Background())
			s.resetSession(ctx, id, pubsub.ReasonUnauthorized)
		}),
	)
}

// SetEventPublisher replaces the event sink (for testing).
func (s *Service) SetEventPublisher(events EventPublisher) {
	s.events = events
}

// session returns the client selected by the Authorization header.
func (s *Service) session(authorization string) (*studyapi.Client, error) {
	s.metrics.Requests.Add(1)
	if authorization == "" {
		return nil, toAPIError(studyapi.ErrNoAccessToken)
	}
	if !s.limiter.Allow(pubsub.SessionID(authorization)) {
		s.metrics.Throttled.Add(1)
		return nil, &errs.Error{Code: errs.ResourceExhausted, Message: "too many requests, slow down"}
	}
	return s.sessions.Get(authorization), nil
}

// resetSession drops a session locally and tells the other instances to do the same.
func (s *Service) resetSession(ctx context.Context, id string, reason pubsub.ResetReason) {
	s.sessions.Drop(ctx, id)
	s.limiter.Forget(id)
	s.metrics.Resets.Add(1)

	event := &pubsub.SessionResetEvent{
		Version:     pubsub.EventVersion1,
		Service:     serviceName,
		SessionID:   id,
		Reason:      reason,
		TriggeredAt: s.clock.Now(),
		RequestID:   logging.RequestIDFromCtx(ctx),
	}
	if err := s.events.PublishSessionReset(ctx, event); err != nil {
		s.metrics.EventErrors.Add(1)
		logging.Error(ctx, "Failed to publish session reset", err, logging.Fields{
			"session_id": id,
			"reason":     string(reason),
		})
		return
	}

	logging.Info(ctx, "Session reset", logging.Fields{
		"session_id": id,
		"reason":     string(reason),
	})
}

// sweepIdle drops sessions idle longer than the configured timeout.
func (s *Service) sweepIdle(ctx context.Context) []string {
	dropped := s.sessions.Sweep(ctx, s.config.SessionIdleTimeout)
	s.limiter.EvictStaleKeys(s.config.SessionIdleTimeout)
	s.metrics.SweptIdle.Add(int64(len(dropped)))
	if len(dropped) > 0 {
		logging.Info(ctx, "Idle sessions swept", logging.Fields{
			"count":        len(dropped),
			"idle_timeout": s.config.SessionIdleTimeout.String(),
		})
	}
	return dropped
}

// observe counts a finished call and maps its error for the API boundary.
func (s *Service) observe(err error) error {
	if err == nil {
		return nil
	}
	if studyapi.IsCanceled(err) {
		s.metrics.Canceled.Add(1)
	} else {
		s.metrics.Failures.Add(1)
	}
	return toAPIError(err)
}
