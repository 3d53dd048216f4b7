package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/usergate/internal/logging"
)

const UserEventsTopic = "user_events"

const publishTimeout = 500 * time.Millisecond

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

// publish is best effort: a broker outage must not fail logins.
func publish(ctx context.Context, p Publisher, key string, event map[string]any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	event["at"] = time.Now().UTC().Format(time.RFC3339)
	if err := p.PublishEvent(ctx, UserEventsTopic, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_failed", "type", event["type"], "error", err)
	}
}
