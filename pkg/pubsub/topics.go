// Package pubsub provides topic names and event type definitions shared by the gateway
// instances.
//
// Topic Naming Convention:
//   - session.reset: a user session was ended and must be dropped everywhere
//   - course.content.refreshed: a course was re-indexed and cached reads about it are stale
//
// No direct Encore dependencies, so pkg/ stays usable outside services.
package pubsub

// Topic name constants for Encore Pub/Sub integration.
const (
	// TopicSessionReset is published when a session logs out or is rejected upstream.
	// Event type: SessionResetEvent
	// Publishers: gateway
	// Subscribers: all gateway instances
	TopicSessionReset = "session.reset"

	// TopicContentRefreshed is published after a course content refresh was accepted.
	// Event type: ContentRefreshedEvent
	// Publishers: gateway
	// Subscribers: all gateway instances
	TopicContentRefreshed = "course.content.refreshed"
)

// AllTopics returns all defined topic names.
func AllTopics() []string {
	return []string{
		TopicSessionReset,
		TopicContentRefreshed,
	}
}

// IsValidTopic checks if the given topic name is recognized.
func IsValidTopic(topic string) bool {
	for _, t := range AllTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

// TopicMetadata provides descriptive information about topics.
type TopicMetadata struct {
	Name        string
	Description string
	EventType   string
}

// GetTopicMetadata returns metadata for all topics.
func GetTopicMetadata() []TopicMetadata {
	return []TopicMetadata{
		{
			Name:        TopicSessionReset,
			Description: "Session resets that drop the session's cache and in-flight requests",
			EventType:   "SessionResetEvent",
		},
		{
			Name:        TopicContentRefreshed,
			Description: "Course content refreshes that invalidate cached course reads",
			EventType:   "ContentRefreshedEvent",
		},
	}
}
