package pubsub

import (
	"strings"
	"testing"
	"time"
)

func TestSessionID(t *testing.T) {
	id := SessionID("token-abc")
	if len(id) != 32 {
		t.Errorf("SessionID() length = %d, want 32", len(id))
	}
	if id != SessionID("token-abc") {
		t.Error("SessionID() is not deterministic")
	}
	if id == SessionID("token-abd") {
		t.Error("different tokens produced the same session id")
	}
	if strings.Contains(id, "token") {
		t.Error("session id leaks the token")
	}
}

func TestSessionResetEvent_Validate(t *testing.T) {
	now := time.Now()

	valid := func() SessionResetEvent {
		return SessionResetEvent{
			Version:     EventVersion1,
			Service:     "gateway",
			SessionID:   SessionID("token-abc"),
			Reason:      ReasonLogout,
			TriggeredAt: now,
			RequestID:   "req-123",
		}
	}

	tests := []struct {
		name    string
		mutate  func(e *SessionResetEvent)
		wantErr bool
	}{
		{"valid logout", func(e *SessionResetEvent) {}, false},
		{"valid unauthorized", func(e *SessionResetEvent) { e.Reason = ReasonUnauthorized }, false},
		{"idle is not broadcast", func(e *SessionResetEvent) { e.Reason = "idle" }, true},
		{"invalid version", func(e *SessionResetEvent) { e.Version = 999 }, true},
		{"missing service", func(e *SessionResetEvent) { e.Service = "" }, true},
		{"missing session id", func(e *SessionResetEvent) { e.SessionID = "" }, true},
		{"unknown reason", func(e *SessionResetEvent) { e.Reason = "bored" }, true},
		{"zero triggered_at", func(e *SessionResetEvent) { e.TriggeredAt = time.Time{} }, true},
		{"missing request_id", func(e *SessionResetEvent) { e.RequestID = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid()
			tt.mutate(&event)
			err := event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionResetEvent_JSON(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	event := SessionResetEvent{
		Version:     EventVersion1,
		Service:     "gateway",
		SessionID:   SessionID("token-abc"),
		Reason:      ReasonUnauthorized,
		TriggeredAt: now,
		RequestID:   "req-123",
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.Contains(string(data), `"reason":"unauthorized"`) {
		t.Errorf("ToJSON() = %s, missing reason", data)
	}

	decoded, err := SessionResetEventFromJSON(data)
	if err != nil {
		t.Fatalf("SessionResetEventFromJSON() error = %v", err)
	}
	if decoded.SessionID != event.SessionID {
		t.Errorf("SessionID = %v, want %v", decoded.SessionID, event.SessionID)
	}
	if decoded.Reason != event.Reason {
		t.Errorf("Reason = %v, want %v", decoded.Reason, event.Reason)
	}
	if !decoded.TriggeredAt.Equal(event.TriggeredAt) {
		t.Errorf("TriggeredAt = %v, want %v", decoded.TriggeredAt, event.TriggeredAt)
	}
	if err := decoded.Validate(); err != nil {
		t.Errorf("decoded event invalid: %v", err)
	}
}

func TestSessionResetEventFromJSON_Invalid(t *testing.T) {
	if _, err := SessionResetEventFromJSON([]byte(`{"version":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestContentRefreshedEvent_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   ContentRefreshedEvent
		wantErr bool
	}{
		{
			name: "valid",
			event: ContentRefreshedEvent{
				Version:     EventVersion1,
				Service:     "gateway",
				Course:      "course-1",
				TriggeredAt: now,
				RequestID:   "req-1",
			},
			wantErr: false,
		},
		{
			name: "missing course",
			event: ContentRefreshedEvent{
				Version:     EventVersion1,
				Service:     "gateway",
				TriggeredAt: now,
				RequestID:   "req-1",
			},
			wantErr: true,
		},
		{
			name: "invalid version",
			event: ContentRefreshedEvent{
				Version:     2,
				Service:     "gateway",
				Course:      "course-1",
				TriggeredAt: now,
				RequestID:   "req-1",
			},
			wantErr: true,
		},
		{
			name: "missing request_id",
			event: ContentRefreshedEvent{
				Version:     EventVersion1,
				Service:     "gateway",
				Course:      "course-1",
				TriggeredAt: now,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContentRefreshedEvent_JSON(t *testing.T) {
	event := ContentRefreshedEvent{
		Version:     EventVersion1,
		Service:     "gateway",
		Course:      "course-1",
		TriggeredAt: time.Now().Truncate(time.Second),
		RequestID:   "req-1",
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	decoded, err := ContentRefreshedEventFromJSON(data)
	if err != nil {
		t.Fatalf("ContentRefreshedEventFromJSON() error = %v", err)
	}
	if decoded.Course != "course-1" {
		t.Errorf("Course = %v, want course-1", decoded.Course)
	}
}

func TestTopics(t *testing.T) {
	for _, topic := range AllTopics() {
		if !IsValidTopic(topic) {
			t.Errorf("IsValidTopic(%q) = false", topic)
		}
	}
	if IsValidTopic("cache.invalidate") {
		t.Error("unknown topic reported valid")
	}
	if got, want := len(GetTopicMetadata()), len(AllTopics()); got != want {
		t.Errorf("GetTopicMetadata() has %d entries, want %d", got, want)
	}
}
