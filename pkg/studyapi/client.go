// Package studyapi is the client for the study-assistant HTTP API.
//
// A Client is one user's session: it owns the access token, a TTL read cache and the
// coalescing state of the instructor analytics calls. Analytics reads are debounced so a
// burst of identical requests (a dashboard re-rendering, a user flipping the period filter)
// reaches the API once. Each analytics request runs under its operation's cancellation
// scope, so a newer request or a logout discards a response that is still in flight.
package studyapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"aceit.app/pkg/coalesce"
	"aceit.app/pkg/logging"
	"aceit.app/pkg/models"
	"aceit.app/pkg/ttlcache"
	"aceit.app/pkg/utils"
)

// rankingQuery are the arguments of the top-questions and top-materials reads.
type rankingQuery struct {
	Course string
	Num    int
	Period models.Timeframe
}

// engagementQuery are the arguments of the engagement read.
type engagementQuery struct {
	Course string
	Period models.Timeframe
}

// Metrics counts upstream traffic.
type Metrics struct {
	UpstreamRequests atomic.Int64
	UpstreamErrors   atomic.Int64
}

// Stats is a point-in-time view of a Client.
type Stats struct {
	Cache            ttlcache.Stats            `json:"cache"`
	Debouncers       []coalesce.DebouncerStats `json:"debouncers"`
	Scopes           []coalesce.ScopeStats     `json:"scopes"`
	UpstreamRequests int64                     `json:"upstream_requests"`
	UpstreamErrors   int64                     `json:"upstream_errors"`
}

// Client calls the study-assistant API on behalf of one session.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	clock   clockwork.Clock
	cache   *ttlcache.Cache
	metrics *Metrics

	mu             sync.RWMutex
	accessToken    string
	onUnauthorized func()

	topQuestions *coalesce.Debouncer[rankingQuery, []string]
	topMaterials *coalesce.Debouncer[rankingQuery, []models.Material]
	engagement   *coalesce.Debouncer[engagementQuery, models.StudentEngagement]

	questionsScope  *coalesce.Scope
	materialsScope  *coalesce.Scope
	engagementScope *coalesce.Scope
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used by the cache and the debouncers.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithAccessToken starts the client with a token already set.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = token
	}
}

// OnUnauthorized registers the hook invoked when the API answers 401. It is where the
// caller forces re-authentication.
func OnUnauthorized(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = ttlcache.DefaultTTL
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = coalesce.DefaultQuietPeriod
	}
	if cfg.MaxUpstreamRPS <= 0 {
		cfg.MaxUpstreamRPS = DefaultConfig().MaxUpstreamRPS
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxUpstreamRPS), cfg.MaxUpstreamRPS),
		clock:   clockwork.NewRealClock(),
		metrics: &Metrics{},

		questionsScope:  coalesce.NewScope(opTopQuestions.name),
		materialsScope:  coalesce.NewScope(opTopMaterials.name),
		engagementScope: coalesce.NewScope(opEngagement.name),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.cache = ttlcache.New(ttlcache.WithClock(c.clock), ttlcache.WithTTL(cfg.CacheTTL))

	clockOpt := coalesce.WithDebounceClock(c.clock)
	c.topQuestions = coalesce.NewDebouncer(opTopQuestions.name, cfg.QuietPeriod, c.fetchTopQuestions, clockOpt)
	c.topMaterials = coalesce.NewDebouncer(opTopMaterials.name, cfg.QuietPeriod, c.fetchTopMaterials, clockOpt)
	c.engagement = coalesce.NewDebouncer(opEngagement.name, cfg.QuietPeriod, c.fetchEngagement, clockOpt)

	return c
}

// SetAccessToken replaces the session token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// AccessToken returns the session token, or "" when none is set.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) token() (string, error) {
	token := c.AccessToken()
	if token == "" {
		return "", ErrNoAccessToken
	}
	return token, nil
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	hook := c.onUnauthorized
	c.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

// Logout ends the session: the cache is emptied, in-flight analytics reads are aborted and
// the token is dropped.
func (c *Client) Logout(ctx context.Context) {
	c.cache.Clear()
	c.questionsScope.Abort()
	c.materialsScope.Abort()
	c.engagementScope.Abort()
	c.SetAccessToken("")

	logging.Info(ctx, "Session logged out", nil)
}

// Cache exposes the session's read cache.
func (c *Client) Cache() *ttlcache.Cache {
	return c.cache
}

// Stats returns cache, coalescer and upstream counters for the session.
func (c *Client) Stats() Stats {
	return Stats{
		Cache: c.cache.Stats(),
		Debouncers: []coalesce.DebouncerStats{
			c.topQuestions.Stats(),
			c.topMaterials.Stats(),
			c.engagement.Stats(),
		},
		Scopes: []coalesce.ScopeStats{
			c.questionsScope.Stats(),
			c.materialsScope.Stats(),
			c.engagementScope.Stats(),
		},
		UpstreamRequests: c.metrics.UpstreamRequests.Load(),
		UpstreamErrors:   c.metrics.UpstreamErrors.Load(),
	}
}

// Session is what the application loads on start-up.
type Session struct {
	User    models.UserInfo `json:"user"`
	Courses []models.Course `json:"courses"`
}

// Bootstrap loads the user profile and the course list concurrently.
func (c *Client) Bootstrap(ctx context.Context) (*Session, error) {
	g, ctx := errgroup.WithContext(ctx)

	var session Session
	g.Go(func() error {
		user, err := c.UserInfo(ctx)
		if err != nil {
			return err
		}
		session.User = user
		return nil
	})
	g.Go(func() error {
		courses, err := c.Courses(ctx)
		if err != nil {
			return err
		}
		session.Courses = courses
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &session, nil
}

// InvalidateCourse drops cached reads that a content refresh of course makes stale.
func (c *Client) InvalidateCourse(course string) {
	c.cache.Delete(utils.CacheKey(opCourseConfig.name, course))
}
