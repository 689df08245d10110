package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/flowerr"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/retryer"
	"github.com/simplesurance/reviewflow/internal/set"
)

// SlackSink sends notifications via the Slack Web API as a bot user.
// Messages to users with a known Slack member ID are sent as direct
// messages, other messages go to the default channel if one is configured.
type SlackSink struct {
	clt     *slack.Client
	retryer *retryer.Retryer
	logger  *zap.Logger

	apiOpts        []slack.Option
	defaultChannel string
	// slackIDs maps GitHub logins to Slack member IDs
	slackIDs map[string]string
	muted    set.Set[MessageCategory]
}

type SlackOption func(*SlackSink)

// WithSlackIDs configures the Slack member IDs of GitHub users, they are
// used for direct messages and mentions.
func WithSlackIDs(ids map[string]string) SlackOption {
	return func(s *SlackSink) {
		s.slackIDs = ids
	}
}

// WithMutedCategories suppresses messages of the given categories.
func WithMutedCategories(categories ...MessageCategory) SlackOption {
	return func(s *SlackSink) {
		s.muted = set.From(categories)
	}
}

// WithDefaultChannel sets the channel that receives messages for users
// without a Slack member ID.
func WithDefaultChannel(channelID string) SlackOption {
	return func(s *SlackSink) {
		s.defaultChannel = channelID
	}
}

// WithAPIURL overwrites the Slack Web API base URL. It must end with a
// slash.
func WithAPIURL(url string) SlackOption {
	return func(s *SlackSink) {
		s.apiOpts = append(s.apiOpts, slack.OptionAPIURL(url))
	}
}

func NewSlackSink(botToken string, r *retryer.Retryer, opts ...SlackOption) *SlackSink {
	s := SlackSink{
		retryer:  r,
		logger:   zap.L().Named(loggerName).Named("slack"),
		slackIDs: map[string]string{},
		muted:    set.New[MessageCategory](),
	}

	for _, opt := range opts {
		opt(&s)
	}

	s.clt = slack.New(botToken, s.apiOpts...)

	return &s
}

func (s *SlackSink) Mention(login string) string {
	if id, exists := s.slackIDs[login]; exists {
		return "<@" + id + ">"
	}

	return "@" + login
}

// channel returns the channel a message for login is posted to and the
// text to post. An empty channel is returned when the user can not be
// reached.
func (s *SlackSink) channel(login, text string) (string, string) {
	if id, exists := s.slackIDs[login]; exists {
		return id, text
	}

	if s.defaultChannel != "" {
		return s.defaultChannel, s.Mention(login) + " " + text
	}

	return "", ""
}

// PostMessage sends text to the user, transient failures are retried.
// A nil MessageRef is returned when the message was not sent.
func (s *SlackSink) PostMessage(ctx context.Context, category MessageCategory, userID int64, login, text string) (*MessageRef, error) {
	logF := []zap.Field{
		logfields.Event("slack_message_post"),
		zap.String("notification_category", string(category)),
		zap.Int64("github.user_id", userID),
		zap.String("github.login", login),
	}

	if s.muted.Contains(category) {
		s.logger.Debug("category is muted, message not sent", logF...)
		return nil, nil
	}

	channelID, msg := s.channel(login, text)
	if channelID == "" {
		s.logger.Debug("user has no slack id and no default channel is configured, message not sent", logF...)
		return nil, nil
	}

	var ref MessageRef
	err := s.retryer.Run(ctx, func(ctx context.Context) error {
		ch, ts, err := s.clt.PostMessageContext(ctx, channelID, slack.MsgOptionText(msg, false))
		if err != nil {
			return toRetryableError(err)
		}

		ref = MessageRef{Channel: ch, ID: ts}
		return nil
	}, logF)
	if err != nil {
		return nil, fmt.Errorf("posting slack message failed: %w", err)
	}

	s.logger.Debug(
		"slack message sent",
		append(logF, zap.String("slack.channel", ref.Channel), zap.String("slack.ts", ref.ID))...,
	)

	return &ref, nil
}

func (s *SlackSink) UpdateMessage(ctx context.Context, ref *MessageRef, text string) error {
	if ref == nil {
		return nil
	}

	err := s.retryer.Run(ctx, func(ctx context.Context) error {
		_, _, _, err := s.clt.UpdateMessageContext(ctx, ref.Channel, ref.ID, slack.MsgOptionText(text, false))
		return toRetryableError(err)
	}, refLogFields("slack_message_update", ref))
	if err != nil {
		return fmt.Errorf("updating slack message failed: %w", err)
	}

	return nil
}

func (s *SlackSink) DeleteMessage(ctx context.Context, ref *MessageRef) error {
	if ref == nil {
		return nil
	}

	err := s.retryer.Run(ctx, func(ctx context.Context) error {
		_, _, err := s.clt.DeleteMessageContext(ctx, ref.Channel, ref.ID)
		return toRetryableError(err)
	}, refLogFields("slack_message_delete", ref))
	if err != nil {
		return fmt.Errorf("deleting slack message failed: %w", err)
	}

	return nil
}

func (s *SlackSink) AddReaction(ctx context.Context, ref *MessageRef, name string) error {
	if ref == nil {
		return nil
	}

	err := s.retryer.Run(ctx, func(ctx context.Context) error {
		return toRetryableError(s.clt.AddReactionContext(ctx, name, slack.NewRefToMessage(ref.Channel, ref.ID)))
	}, append(refLogFields("slack_reaction_add", ref), zap.String("slack.reaction", name)))
	if err != nil {
		return fmt.Errorf("adding slack reaction failed: %w", err)
	}

	return nil
}

func refLogFields(event string, ref *MessageRef) []zap.Field {
	return []zap.Field{
		logfields.Event(event),
		zap.String("slack.channel", ref.Channel),
		zap.String("slack.ts", ref.ID),
	}
}

// toRetryableError wraps err into a flowerr.RetryableError if the request
// can succeed when it is repeated.
func toRetryableError(err error) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *slack.RateLimitedError
	if errors.As(err, &rateLimitErr) {
		return flowerr.NewRetryableError(err, time.Now().Add(rateLimitErr.RetryAfter))
	}

	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		return err
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) && !statusErr.Retryable() {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return flowerr.NewRetryableAnytimeError(err)
}
