package studyapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"aceit.app/pkg/models"
)

// SendMessage posts a student message and returns the updated conversation. An empty
// conversationID starts a new conversation. English needs no translation, so "en" is not sent.
func (c *Client) SendMessage(ctx context.Context, course, message, conversationID, language string) (*models.Conversation, error) {
	if language == "en" {
		language = ""
	}

	var conv models.Conversation
	err := c.call(ctx, request{
		op:     opSendMessage,
		method: http.MethodPost,
		path:   "/ui/student/send-message",
		body: models.SendMessageRequest{
			Course:         course,
			Message:        message,
			ConversationID: conversationID,
			Language:       language,
		},
	}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// PastSessions lists the user's earlier conversations in a course.
func (c *Client) PastSessions(ctx context.Context, course string) ([]models.ConversationSession, error) {
	var sessions []models.ConversationSession
	err := c.call(ctx, request{
		op:     opPastSessions,
		method: http.MethodGet,
		path:   "/ui/student/sessions",
		query:  url.Values{"course": {course}},
	}, &sessions)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// RestoreSession loads a past conversation.
func (c *Client) RestoreSession(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := c.call(ctx, request{
		op:     opRestoreSession,
		method: http.MethodGet,
		path:   "/ui/student/session",
		query:  url.Values{"conversation_id": {conversationID}},
	}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Suggestions returns suggested questions for a course. num is only sent when positive;
// otherwise the API picks the count.
func (c *Client) Suggestions(ctx context.Context, course string, num int) ([]string, error) {
	query := url.Values{"course": {course}}
	if num > 0 {
		query.Set("num_suggests", strconv.Itoa(num))
	}

	var suggestions []string
	err := c.call(ctx, request{
		op:     opSuggestions,
		method: http.MethodGet,
		path:   "/llm/suggestions",
		query:  query,
	}, &suggestions)
	if err != nil {
		return nil, err
	}
	return suggestions, nil
}
