package studyapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CanvasURL = "https://canvas.example.edu"
	cfg.ClientID = "10000000000001"
	cfg.RedirectURI = "https://aceit.example.edu/callback"

	u, err := url.Parse(AuthorizeURL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "canvas.example.edu", u.Host)
	assert.Equal(t, "/login/oauth2/auth", u.Path)

	q := u.Query()
	assert.Equal(t, "10000000000001", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://aceit.example.edu/callback", q.Get("redirect_uri"))
	assert.Equal(t, "aceit", q.Get("state"))
}

func TestTokenSet_RefreshAt(t *testing.T) {
	issued := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	tokens := TokenSet{ExpiresIn: 3600, IssuedAt: issued}

	assert.Equal(t, issued.Add(time.Hour), tokens.ExpiresAt())
	assert.Equal(t, issued.Add(59*time.Minute), tokens.RefreshAt())
}

func TestLogin_ExchangesCodeAndStartsSession(t *testing.T) {
	up := NewMockUpstream(t)
	up.JSON("/ui/general/log-in", http.StatusOK, map[string]interface{}{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
	})

	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.BaseURL = up.URL()
	cfg.LocalMode = true
	c := New(cfg, WithClock(clock))

	tokens, err := c.Login(context.Background(), "oauth-code")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.Equal(t, clock.Now(), tokens.IssuedAt)
	assert.Equal(t, "access-1", c.AccessToken())

	req := up.Requests("/ui/general/log-in")[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "oauth-code", req.Header.Get("Authorization"))
	assert.Equal(t, "true", req.Header.Get("Islocaltesting"))
}

func TestLogin_RejectsEmptyCode(t *testing.T) {
	up := NewMockUpstream(t)
	c, _ := newTestClient(t, up)

	_, err := c.Login(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 0, up.CallCount("/ui/general/log-in"))
}

func TestLogin_FailureKeepsSession(t *testing.T) {
	up := NewMockUpstream(t)
	up.JSON("/ui/general/log-in", http.StatusBadRequest, map[string]string{"error": "invalid code"})
	c, _ := newTestClient(t, up)

	_, err := c.Login(context.Background(), "bad-code")
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, testToken, c.AccessToken())
}

func TestScheduleRefresh_RefreshesBeforeExpiry(t *testing.T) {
	up := NewMockUpstream(t)
	up.JSON("/ui/general/refresh-token", http.StatusOK, map[string]interface{}{
		"access_token":  "access-2",
		"refresh_token": "refresh-2",
		"expires_in":    3600,
	})
	c, clock := newTestClient(t, up)

	refreshed := make(chan *TokenSet, 1)
	timer := c.ScheduleRefresh(TokenSet{
		AccessToken:  testToken,
		RefreshToken: "refresh-1",
		ExpiresIn:    3600,
		IssuedAt:     clock.Now(),
	}, func(next *TokenSet, err error) {
		assert.NoError(t, err)
		refreshed <- next
	})
	defer timer.Stop()

	waitForTimer(t, clock)
	clock.Advance(58 * time.Minute)
	assert.Equal(t, 0, up.CallCount("/ui/general/refresh-token"))

	clock.Advance(time.Minute)
	select {
	case next := <-refreshed:
		assert.Equal(t, "access-2", next.AccessToken)
	case <-time.After(2 * time.Second):
		t.Fatal("token was not refreshed")
	}

	assert.Equal(t, "access-2", c.AccessToken())
	req := up.Requests("/ui/general/refresh-token")[0]
	assert.Equal(t, "refresh-1", req.Header.Get("Authorization"))
	assert.Equal(t, "false", req.Header.Get("Islocaltesting"))
}
