package github

import (
	"fmt"

	"go.uber.org/zap"
)

// Event is a validated GitHub webhook event.
type Event struct {
	// DeliveryID is the unique ID GitHub assigned to the delivery.
	DeliveryID string
	// Type is the webhook event type, e.g. "pull_request".
	Type string
	// JSON is the raw payload.
	JSON []byte
	// Event is the payload parsed by github.ParseWebHook, e.g.
	// *github.PullRequestEvent.
	Event     any
	LogFields []zap.Field
}

func (e *Event) String() string {
	return fmt.Sprintf("%s (delivery id: %s)", e.Type, e.DeliveryID)
}
