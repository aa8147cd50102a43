package pubsub

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event versioning strategy:
//   - Version 1: Initial schema
//   - Future versions: Add fields, never remove (backward compatible)

const (
	// EventVersion1 is the current event schema version
	EventVersion1 = 1
)

// ResetReason says why a session was reset.
type ResetReason string

const (
	ReasonLogout       ResetReason = "logout"
	ReasonUnauthorized ResetReason = "unauthorized"
)

// SessionID derives the identifier events carry for a session. Access tokens never leave
// the instance that received them.
func SessionID(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:16])
}

// SessionResetEvent asks every instance to drop a session.
// This event is published to TopicSessionReset.
type SessionResetEvent struct {
	// Version of the event schema (for backward compatibility)
	Version int `json:"version"`

	// Service that reset the session
	Service string `json:"service"`

	// SessionID is SessionID(accessToken) of the session to drop
	SessionID string `json:"session_id"`

	Reason ResetReason `json:"reason"`

	TriggeredAt time.Time `json:"triggered_at"`

	// RequestID of the call that caused the reset
	RequestID string `json:"request_id"`
}

// Validate checks if the SessionResetEvent is well-formed.
func (e *SessionResetEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	if e.SessionID == "" {
		return errors.New("session_id is required")
	}

	switch e.Reason {
	case ReasonLogout, ReasonUnauthorized:
	default:
		return fmt.Errorf("invalid reason: %s (must be logout or unauthorized)", e.Reason)
	}

	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}

	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *SessionResetEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SessionResetEventFromJSON deserializes a SessionResetEvent from JSON.
func SessionResetEventFromJSON(data []byte) (*SessionResetEvent, error) {
	var e SessionResetEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal SessionResetEvent: %w", err)
	}
	return &e, nil
}

// ContentRefreshedEvent reports that a course's materials are being re-indexed.
// This event is published to TopicContentRefreshed.
//
// Subscribers drop the cached course configuration, whose materialLastUpdatedTime is
// about to change.
type ContentRefreshedEvent struct {
	// Version of the event schema
	Version int `json:"version"`

	// Service that accepted the refresh
	Service string `json:"service"`

	// Course whose content was refreshed. Cannot be empty.
	Course string `json:"course"`

	TriggeredAt time.Time `json:"triggered_at"`

	// RequestID for distributed tracing
	RequestID string `json:"request_id"`
}

// Validate checks if the ContentRefreshedEvent is well-formed.
func (e *ContentRefreshedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	if e.Course == "" {
		return errors.New("course cannot be empty")
	}

	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}

	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *ContentRefreshedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ContentRefreshedEventFromJSON deserializes a ContentRefreshedEvent from JSON.
func ContentRefreshedEventFromJSON(data []byte) (*ContentRefreshedEvent, error) {
	var e ContentRefreshedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ContentRefreshedEvent: %w", err)
	}
	return &e, nil
}
