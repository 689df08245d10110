package reviewflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
	ghprovider "github.com/simplesurance/reviewflow/internal/provider/github"
	"github.com/simplesurance/reviewflow/internal/routines"
)

const DefEventChannelBufferSize = 512

// DefEventTimeout is the maximum duration the processing of a single
// event may take.
const DefEventTimeout = 30 * time.Minute

var errEventIgnored = errors.New("event ignored")

func ignored(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errEventIgnored, fmt.Sprintf(format, a...))
}

// EventLoop receives GitHub webhook events and processes them
// concurrently on a fixed size routines.Pool.
// Operations on the same pull request are serialized via the pull request
// lock of the account.
type EventLoop struct {
	ch       chan *ghprovider.Event
	registry *Registry
	pool     *routines.Pool
	wg       sync.WaitGroup

	eventTimeout time.Duration
	logger       *zap.Logger
}

type EventLoopOption func(*EventLoop)

func WithEventTimeout(d time.Duration) EventLoopOption {
	return func(e *EventLoop) {
		e.eventTimeout = d
	}
}

// NewEventLoop creates an EventLoop that processes events with workers
// go-routines.
func NewEventLoop(registry *Registry, workers int, opts ...EventLoopOption) *EventLoop {
	evl := EventLoop{
		ch:           make(chan *ghprovider.Event, DefEventChannelBufferSize),
		registry:     registry,
		pool:         routines.NewPool(workers),
		eventTimeout: DefEventTimeout,
		logger:       zap.L().Named(loggerName).Named("event-loop"),
	}

	for _, opt := range opts {
		opt(&evl)
	}

	return &evl
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *EventLoop) C() chan<- *ghprovider.Event {
	return e.ch
}

// Start starts processing events in the background.
func (e *EventLoop) Start() {
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		e.logger.Info("ready to process events", logfields.Event("eventloop_started"))

		for ev := range e.ch {
			ev := ev
			e.pool.Queue(func() {
				e.process(ev)
			})
		}

		e.logger.Info(
			"event loop terminated, event channel was closed",
			logfields.Event("eventloop_terminated"),
		)
	}()
}

// Stop closes the event channel and waits until all received events were
// processed.
func (e *EventLoop) Stop() {
	e.logger.Debug("event loop terminating", logfields.Event("eventloop_terminating"))

	close(e.ch)
	e.wg.Wait()
	e.pool.Wait()

	e.logger.Info("event loop terminated", logfields.Event("eventloop_terminated"))
}

func (e *EventLoop) process(ev *ghprovider.Event) {
	ctx, cancelFn := context.WithTimeout(context.Background(), e.eventTimeout)
	defer cancelFn()

	logger := e.logger.With(ev.LogFields...)
	logger.Debug("event received", logfields.Event("event_received"))

	action, err := e.dispatch(ctx, logger, ev)

	switch {
	case err == nil:
		metrics.eventInc(ev.Type, action, eventResultProcessed)
		logger.Debug(
			"event processed",
			logfields.Event("event_processed"),
			zap.String("github.event_action", action),
		)

	case errors.Is(err, errEventIgnored), errors.Is(err, ErrNotMonitored):
		metrics.eventInc(ev.Type, action, eventResultIgnored)
		logger.Debug(
			"event ignored",
			logfields.Event("github_event_ignored"),
			zap.String("github.event_action", action),
			logfields.Reason(err.Error()),
		)

	default:
		metrics.eventInc(ev.Type, action, eventResultFailed)
		logger.Error(
			"processing event failed",
			logfields.Event("event_processing_failed"),
			zap.String("github.event_action", action),
			zap.Error(err),
		)
	}
}

func (e *EventLoop) dispatch(ctx context.Context, logger *zap.Logger, event *ghprovider.Event) (string, error) {
	switch ev := event.Event.(type) {
	case *github.PullRequestEvent:
		repo, err := e.repo(ctx, ev.GetRepo())
		if err != nil {
			return ev.GetAction(), err
		}

		return ev.GetAction(), repo.HandlePullRequestEvent(ctx, logger, ev)

	case *github.PullRequestReviewEvent:
		repo, err := e.repo(ctx, ev.GetRepo())
		if err != nil {
			return ev.GetAction(), err
		}

		return ev.GetAction(), repo.HandlePullRequestReviewEvent(ctx, logger, ev)

	case *github.IssueCommentEvent:
		repo, err := e.repo(ctx, ev.GetRepo())
		if err != nil {
			return ev.GetAction(), err
		}

		return ev.GetAction(), repo.HandleIssueCommentEvent(ctx, logger, ev)

	case *github.StatusEvent:
		repo, err := e.repo(ctx, ev.GetRepo())
		if err != nil {
			return ev.GetState(), err
		}

		return ev.GetState(), repo.HandleStatusEvent(ctx, logger, ev)

	case *github.CheckRunEvent:
		repo, err := e.repo(ctx, ev.GetRepo())
		if err != nil {
			return ev.GetAction(), err
		}

		return ev.GetAction(), repo.HandleCheckRunEvent(ctx, logger, ev)

	case *github.CheckSuiteEvent:
		repo, err := e.repo(ctx, ev.GetRepo())
		if err != nil {
			return ev.GetAction(), err
		}

		return ev.GetAction(), repo.HandleCheckSuiteEvent(ctx, logger, ev)

	default:
		return "", ignored("unsupported event type %s", event.Type)
	}
}

func (e *EventLoop) repo(ctx context.Context, ghRepo *github.Repository) (*RepoContext, error) {
	return e.registry.Repo(ctx, ghRepo.GetOwner().GetLogin(), ghRepo.GetName())
}
