package studyapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"aceit.app/pkg/logging"
)

// oauthState is echoed back by the LMS on the redirect.
const oauthState = "aceit"

// refreshLead is how long before expiry a token is refreshed.
const refreshLead = time.Minute

// TokenSet is the result of a login or a token refresh.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"` // seconds
	IssuedAt     time.Time `json:"-"`
}

// ExpiresAt is when the access token stops being accepted.
func (t TokenSet) ExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// RefreshAt is when the token should be refreshed: one minute before it expires.
func (t TokenSet) RefreshAt() time.Time {
	return t.ExpiresAt().Add(-refreshLead)
}

// AuthorizeURL is the LMS page that starts the OAuth flow.
func AuthorizeURL(cfg Config) string {
	q := url.Values{}
	q.Set("client_id", cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", cfg.RedirectURI)
	q.Set("state", oauthState)
	return cfg.CanvasURL + "/login/oauth2/auth?" + q.Encode()
}

// Login exchanges an OAuth authorization code for tokens and starts the session with the
// new access token.
func (c *Client) Login(ctx context.Context, code string) (*TokenSet, error) {
	if code == "" {
		return nil, errors.New("authorization code cannot be empty")
	}
	return c.exchange(ctx, opLogin, "/ui/general/log-in", code)
}

// RefreshToken trades a refresh token for a new token set and switches the session to it.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token cannot be empty")
	}
	return c.exchange(ctx, opRefreshToken, "/ui/general/refresh-token", refreshToken)
}

func (c *Client) exchange(ctx context.Context, op operation, path, credential string) (*TokenSet, error) {
	header := http.Header{}
	header.Set("Islocaltesting", strconv.FormatBool(c.cfg.LocalMode))

	var tokens TokenSet
	err := c.call(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   path,
		header: header,
		auth:   credential,
	}, &tokens)
	if err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, errors.New(op.name + ": response carried no access token")
	}

	tokens.IssuedAt = c.clock.Now()
	c.SetAccessToken(tokens.AccessToken)
	return &tokens, nil
}

// ScheduleRefresh refreshes the session token at tokens.RefreshAt, or at once if that has
// passed. onRefresh, when set, receives the outcome. Stop the returned timer to cancel.
// It is for callers that hold the refresh token; the gateway does not keep one per session.
func (c *Client) ScheduleRefresh(tokens TokenSet, onRefresh func(*TokenSet, error)) clockwork.Timer {
	delay := tokens.RefreshAt().Sub(c.clock.Now())
	if delay < 0 {
		delay = 0
	}

	return c.clock.AfterFunc(delay, func() {
		ctx, _ := logging.EnsureRequestID(context.Background())
		next, err := c.RefreshToken(ctx, tokens.RefreshToken)
		if err == nil {
			logging.Info(ctx, "Access token refreshed", logging.Fields{"expires_at": next.ExpiresAt()})
		}
		if onRefresh != nil {
			onRefresh(next, err)
		}
	})
}
