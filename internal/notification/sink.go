// Package notification delivers messages about pull requests to users.
// Delivery is best effort, callers must not depend on it.
package notification

import (
	"context"
)

// MessageCategory groups messages, users can be notified per category.
type MessageCategory string

const (
	CategoryPRLifecycle         MessageCategory = "pr-lifecycle"
	CategoryPRLifecycleFollow   MessageCategory = "pr-lifecycle-follow"
	CategoryPRReview            MessageCategory = "pr-review"
	CategoryPRReviewFollow      MessageCategory = "pr-review-follow"
	CategoryPRComment           MessageCategory = "pr-comment"
	CategoryPRCommentBots       MessageCategory = "pr-comment-bots"
	CategoryPRCommentFollow     MessageCategory = "pr-comment-follow"
	CategoryPRCommentFollowBots MessageCategory = "pr-comment-follow-bots"
	CategoryPRCommentThread     MessageCategory = "pr-comment-thread"
	CategoryPRCommentMention    MessageCategory = "pr-comment-mention"
	CategoryPRMergeConflicts    MessageCategory = "pr-merge-conflicts"
	CategoryIssueCommentMention MessageCategory = "issue-comment-mention"
)

// MessageRef identifies a posted message.
type MessageRef struct {
	Channel string
	ID      string
}

//go:generate mockgen -source=sink.go -destination=mocks/sink.go -package=mocks

// Sink delivers notifications.
type Sink interface {
	// Mention returns the text that mentions the user in a message.
	Mention(login string) string
	// PostMessage sends text to the user. If the message was not sent
	// or the sink can not reference messages, nil is returned for the
	// MessageRef.
	PostMessage(ctx context.Context, category MessageCategory, userID int64, login, text string) (*MessageRef, error)
	UpdateMessage(ctx context.Context, ref *MessageRef, text string) error
	DeleteMessage(ctx context.Context, ref *MessageRef) error
	AddReaction(ctx context.Context, ref *MessageRef, name string) error
}
