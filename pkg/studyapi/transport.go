package studyapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"aceit.app/pkg/coalesce"
	"aceit.app/pkg/logging"
	"aceit.app/pkg/utils"
)

// operation names an API call and the message logged when it fails.
type operation struct {
	name    string
	failure string
}

var (
	opCourses         = operation{"courses", "Failed to fetch courses. Please try again later."}
	opUserInfo        = operation{"userInfo", "Failed to fetch user information. Please try again later."}
	opSendMessage     = operation{"sendMessage", "Failed to send message. Please try again."}
	opPastSessions    = operation{"pastSessions", "Failed to fetch past sessions. Please try again."}
	opRestoreSession  = operation{"restoreSession", "Failed to restore past session. Please try again."}
	opTopQuestions    = operation{"topQuestions", "Failed to fetch top questions. Please try again."}
	opTopMaterials    = operation{"topMaterials", "Failed to fetch top materials. Please try again."}
	opEngagement      = operation{"engagement", "Failed to fetch student engagement. Please try again."}
	opCourseConfig    = operation{"config", "Failed to fetch course configuration. Please try again."}
	opUpdateConfig    = operation{"updateConfig", "Failed to update course configuration. Please try again."}
	opUpdateLanguage  = operation{"updateLanguage", "Failed to update language preference. Please try again."}
	opSuggestions     = operation{"suggestions", "Failed to fetch suggestions. Please try again."}
	opRefreshContent  = operation{"refreshContent", "Failed to refresh course content. Please try again."}
	opCourseMaterials = operation{"courseMaterials", "Failed to fetch course materials. Please try again."}
	opLogin           = operation{"login", "Failed to fetch access token."}
	opRefreshToken    = operation{"refreshToken", "Failed to refresh access token."}
)

// request describes one upstream call.
type request struct {
	op     operation
	method string
	path   string
	query  url.Values
	body   interface{}
	header http.Header
	// auth overrides the session token, for the login endpoints.
	auth string
}

// call performs req with the session token and decodes the response into out.
// Genuine failures are logged once with the operation's message; cancellations are not.
func (c *Client) call(ctx context.Context, req request, out interface{}) error {
	if req.auth == "" {
		token, err := c.token()
		if err != nil {
			return err
		}
		req.auth = token
	}

	ctx, _ = logging.EnsureRequestID(ctx)

	err := c.roundTrip(ctx, req, out)
	if err == nil {
		return nil
	}

	if !IsCanceled(err) {
		logging.Error(ctx, req.op.failure, err, logging.Fields{
			"op":     req.op.name,
			"method": req.method,
			"path":   req.path,
		})
	}
	return fmt.Errorf("%s: %w", req.op.name, err)
}

func (c *Client) roundTrip(ctx context.Context, req request, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if cause := coalesce.CancelCause(ctx); cause != nil {
			return cause
		}
		return fmt.Errorf("rate limit: %w", err)
	}

	target := c.cfg.BaseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := utils.MarshalJSON(req.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", req.auth)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(logging.RequestIDHeader, logging.RequestIDFromCtx(ctx))
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.metrics.UpstreamRequests.Add(1)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if cause := coalesce.CancelCause(ctx); cause != nil {
			return cause
		}
		c.metrics.UpstreamErrors.Add(1)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := utils.ReadBody(resp.Body)
	if err != nil {
		if cause := coalesce.CancelCause(ctx); cause != nil {
			return cause
		}
		c.metrics.UpstreamErrors.Add(1)
		return err
	}

	// A response that arrives after the request was superseded is discarded.
	if cause := coalesce.CancelCause(ctx); cause != nil {
		return cause
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.metrics.UpstreamErrors.Add(1)
		c.unauthorized()
		return &HTTPError{StatusCode: resp.StatusCode, Message: utils.ErrorMessage(data)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.UpstreamErrors.Add(1)
		return &HTTPError{StatusCode: resp.StatusCode, Message: utils.ErrorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return utils.UnmarshalJSON(data, out)
}
