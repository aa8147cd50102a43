package gateway

import (
	"context"

	"encore.dev/pubsub"

	"aceit.app/pkg/logging"
	events "aceit.app/pkg/pubsub"
	"aceit.app/pkg/studyapi"
)

// EventPublisher publishes gateway events to the other instances.
type EventPublisher interface {
	PublishSessionReset(ctx context.Context, event *events.SessionResetEvent) error
	PublishContentRefreshed(ctx context.Context, event *events.ContentRefreshedEvent) error
}

// Pub/Sub topic definitions for session coordination.
var SessionResetTopic = pubsub.NewTopic[*events.SessionResetEvent](
	"session-reset",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

var ContentRefreshedTopic = pubsub.NewTopic[*events.ContentRefreshedEvent](
	"content-refreshed",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// topicPublisher publishes to the Encore topics.
type topicPublisher struct{}

func (topicPublisher) PublishSessionReset(ctx context.Context, event *events.SessionResetEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := SessionResetTopic.Publish(ctx, event)
	return err
}

func (topicPublisher) PublishContentRefreshed(ctx context.Context, event *events.ContentRefreshedEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := ContentRefreshedTopic.Publish(ctx, event)
	return err
}

// Every instance drops a session reset anywhere.
var _ = pubsub.NewSubscription(
	SessionResetTopic,
	"gateway-session-reset",
	pubsub.SubscriptionConfig[*events.SessionResetEvent]{
		Handler: HandleSessionReset,
	},
)

// HandleSessionReset drops the session named by the event. Unknown sessions are ignored.
func HandleSessionReset(ctx context.Context, event *events.SessionResetEvent) error {
	if svc == nil {
		return nil
	}
	return svc.handleSessionReset(ctx, event)
}

func (s *Service) handleSessionReset(ctx context.Context, event *events.SessionResetEvent) error {
	if err := event.Validate(); err != nil {
		// Redelivery cannot fix a malformed event.
		logging.Warn(ctx, "Dropping invalid session reset event", logging.Fields{"error": err.Error()})
		return nil
	}

	ctx = logging.WithRequestID(ctx, event.RequestID)
	if s.sessions.Drop(ctx, event.SessionID) {
		logging.Info(ctx, "Session dropped on reset event", logging.Fields{
			"session_id": event.SessionID,
			"reason":     string(event.Reason),
		})
	}
	return nil
}

// Every instance invalidates cached reads of a refreshed course.
var _ = pubsub.NewSubscription(
	ContentRefreshedTopic,
	"gateway-content-refreshed",
	pubsub.SubscriptionConfig[*events.ContentRefreshedEvent]{
		Handler: HandleContentRefreshed,
	},
)

// HandleContentRefreshed drops the course's cached configuration from every session.
func HandleContentRefreshed(ctx context.Context, event *events.ContentRefreshedEvent) error {
	if svc == nil {
		return nil
	}
	return svc.handleContentRefreshed(ctx, event)
}

func (s *Service) handleContentRefreshed(ctx context.Context, event *events.ContentRefreshedEvent) error {
	if err := event.Validate(); err != nil {
		logging.Warn(ctx, "Dropping invalid content refreshed event", logging.Fields{"error": err.Error()})
		return nil
	}

	s.sessions.Each(func(c *studyapi.Client) {
		c.InvalidateCourse(event.Course)
	})
	return nil
}
