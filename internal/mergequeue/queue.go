// Package mergequeue implements the per repository merge queue.
//
// A queue has a single merge slot, the pull request in the slot is the only
// one of the repository for that a merge is attempted. Further eligible pull
// requests wait in a FIFO overflow queue. When the slot is released, the
// first pull request of the overflow queue moves into the slot and is
// re-evaluated after a delay.
package mergequeue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/flowerr"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/orderedmap"
	"github.com/simplesurance/reviewflow/internal/set"
)

const loggerName = "mergequeue"

// DefRescheduleDelay is the default delay after which a rescheduled pull
// request is evaluated again. It limits the rate of GitHub API calls.
const DefRescheduleDelay = 10 * time.Second

// evaluationTimeout limits the duration of a rescheduled evaluation.
const evaluationTimeout = 10 * time.Minute

// EvaluateFunc re-evaluates the pull request of an entry.
// It is called while the reschedule and the pull request lock are held.
type EvaluateFunc func(ctx context.Context, e *Entry)

// Queue is the merge queue of a repository.
type Queue struct {
	repo RepositoryID

	lock     sync.Mutex
	slot     *Entry
	overflow *orderedmap.Map[int, *Entry]
	// timers contains the pending reschedule timers by pull request number
	timers  map[int]*time.Timer
	stopped bool
	// running counts reschedule callbacks that are executing
	running sync.WaitGroup

	locker          *entitylock.Locker
	evaluate        EvaluateFunc
	rescheduleDelay time.Duration

	logger  *zap.Logger
	metrics *queueMetrics
}

type Option func(*Queue)

func WithRescheduleDelay(d time.Duration) Option {
	return func(q *Queue) {
		q.rescheduleDelay = d
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func New(repo RepositoryID, locker *entitylock.Locker, evaluate EvaluateFunc, opts ...Option) *Queue {
	q := Queue{
		repo:            repo,
		overflow:        orderedmap.New[int, *Entry](),
		timers:          map[int]*time.Timer{},
		locker:          locker,
		evaluate:        evaluate,
		rescheduleDelay: DefRescheduleDelay,
		logger:          zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&q)
	}

	q.logger = q.logger.With(
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.Repository),
	)

	if qm, err := newQueueMetrics(repo); err == nil {
		q.metrics = qm
	} else {
		q.logger.Warn(
			"could not create prometheus metrics",
			logfields.Event("creating_queue_metrics_failed"),
			zap.Error(err),
		)
	}

	return &q
}

// Repository returns the repository the queue belongs to.
func (q *Queue) Repository() RepositoryID {
	return q.repo
}

func (q *Queue) String() string {
	return fmt.Sprintf("merge queue for %s", q.repo)
}

// SetEvaluateFunc sets the function that is run for rescheduled entries.
// It must be called before the first entry is rescheduled.
func (q *Queue) SetEvaluateFunc(fn EvaluateFunc) {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.evaluate = fn
}

// _checkInvariant panics if the queue state is inconsistent.
func (q *Queue) _checkInvariant() {
	if q.slot == nil {
		flowerr.Invariant(
			q.overflow.Len() == 0,
			"%s: merge slot is empty but %d pull requests are in the overflow queue", q.repo, q.overflow.Len(),
		)

		return
	}

	flowerr.Invariant(
		!q.overflow.Contains(q.slot.PRNumber),
		"%s: pull request %d is in the merge slot and in the overflow queue", q.repo, q.slot.PRNumber,
	)
}

func (q *Queue) _updateMetrics() {
	q.metrics.SetState(q.slot != nil, q.overflow.Len())
}

// TryAcquire puts e into the merge slot if it is empty.
// It returns true if e holds the slot afterwards, this is also the case
// when a pull request with the same number was already in the slot.
// If another pull request holds the slot, false is returned.
func (q *Queue) TryAcquire(e *Entry) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q._tryAcquire(e)
}

func (q *Queue) _tryAcquire(e *Entry) bool {
	logger := q.logger.With(e.LogFields...)

	if q.slot == nil {
		q.overflow.Dequeue(e.PRNumber)
		q.slot = e

		q._checkInvariant()
		q._updateMetrics()
		q.metrics.OpsInc(operationAcquire)

		logger.Debug("pull request acquired merge slot", logfields.Event("merge_slot_acquired"))

		return true
	}

	if q.slot.PRNumber == e.PRNumber {
		// branch information is refreshed, the PR snapshot is refetched
		// between evaluations
		q.slot = e
		return true
	}

	logger.Debug(
		"merge slot is held by another pull request",
		logfields.Event("merge_slot_busy"),
		zap.Int("github.pull_request_locked", q.slot.PRNumber),
	)

	return false
}

// AcquireOrEnqueue puts e into the merge slot if it is empty or already
// held by the pull request, otherwise e is appended to the overflow queue.
// Both happen in the same critical section, a concurrent Release can not
// empty the slot in between.
// enqueued is true if e was newly added to the overflow queue.
func (q *Queue) AcquireOrEnqueue(e *Entry) (acquired, enqueued bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q._tryAcquire(e) {
		return true, false
	}

	return false, q._enqueue(e)
}

// Enqueue appends e to the overflow queue.
// If the merge slot is empty, e moves directly into the slot and a
// re-evaluation is scheduled.
// If a pull request with the same number is already in the overflow queue
// or in the merge slot nothing is done and false is returned.
func (q *Queue) Enqueue(e *Entry) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.slot == nil {
		q._tryAcquire(e)
		q._reschedule(e)

		return true
	}

	return q._enqueue(e)
}

func (q *Queue) _enqueue(e *Entry) bool {
	if q.slot != nil && q.slot.PRNumber == e.PRNumber {
		return false
	}

	_, added := q.overflow.EnqueueIfNotExist(e.PRNumber, e)
	if !added {
		return false
	}

	q._checkInvariant()
	q._updateMetrics()
	q.metrics.OpsInc(operationEnqueue)

	q.logger.Debug(
		"pull request appended to overflow queue",
		append([]zap.Field{
			logfields.Event("pull_request_enqueued"),
			zap.Int("overflow_queue_len", q.overflow.Len()),
		}, e.LogFields...)...,
	)

	return true
}

// Release removes the pull request with the number of e from the queue.
// If it holds the merge slot, the first pull request of the overflow queue
// moves into the slot and is rescheduled.
// If it is in the overflow queue, it is removed from it.
func (q *Queue) Release(e *Entry, reason string) {
	q.Remove(e.PRNumber, reason)
}

// Remove removes the pull request with the given number from the merge slot
// or the overflow queue. If it is in neither, nothing is done.
func (q *Queue) Remove(prNumber int, reason string) {
	q.lock.Lock()
	defer q.lock.Unlock()

	logger := q.logger.With(logfields.PullRequest(prNumber), logfields.Reason(reason))

	q._stopTimer(prNumber)

	if q.slot == nil || q.slot.PRNumber != prNumber {
		if removed := q.overflow.Dequeue(prNumber); removed != nil {
			q._updateMetrics()
			logger.Debug(
				"pull request removed from overflow queue",
				logfields.Event("pull_request_dequeued"),
			)
		}

		return
	}

	q.slot = nil
	q.metrics.OpsInc(operationRelease)

	logger.Debug("merge slot released", logfields.Event("merge_slot_released"))

	if _, next, ok := q.overflow.PopFirst(); ok {
		q.slot = next
		q.metrics.OpsInc(operationPromote)

		q.logger.Info(
			"pull request moved from overflow queue into merge slot",
			append([]zap.Field{
				logfields.Event("merge_slot_promoted"),
				zap.Int("github.pull_request_released", prNumber),
			}, next.LogFields...)...,
		)

		q._reschedule(next)
	}

	q._checkInvariant()
	q._updateMetrics()
}

// Reschedule schedules a re-evaluation of e after the reschedule delay.
// If a re-evaluation is already pending for the pull request, it is
// replaced.
func (q *Queue) Reschedule(e *Entry) {
	flowerr.Invariant(e != nil, "%s: reschedule called for a nil entry", q.repo)

	q.lock.Lock()
	defer q.lock.Unlock()

	q._reschedule(e)
}

func (q *Queue) _stopTimer(prNumber int) {
	if t, exists := q.timers[prNumber]; exists {
		t.Stop()
		delete(q.timers, prNumber)
	}
}

func (q *Queue) _reschedule(e *Entry) {
	if q.stopped {
		return
	}

	q._stopTimer(e.PRNumber)

	var t *time.Timer
	t = time.AfterFunc(q.rescheduleDelay, func() {
		q.lock.Lock()
		if q.stopped {
			q.lock.Unlock()
			return
		}

		if cur := q.timers[e.PRNumber]; cur == t {
			delete(q.timers, e.PRNumber)
		}

		q.running.Add(1)
		evaluate := q.evaluate
		q.lock.Unlock()

		defer q.running.Done()

		q.runRescheduled(evaluate, e)
	})
	q.timers[e.PRNumber] = t

	q.metrics.OpsInc(operationReschedule)
	q.logger.Debug(
		"re-evaluation scheduled",
		append([]zap.Field{
			logfields.Event("pull_request_rescheduled"),
			zap.Duration("delay", q.rescheduleDelay),
		}, e.LogFields...)...,
	)
}

func (q *Queue) runRescheduled(evaluate EvaluateFunc, e *Entry) {
	ctx, cancelFn := context.WithTimeout(context.Background(), evaluationTimeout)
	defer cancelFn()

	logger := q.logger.With(e.LogFields...)

	if evaluate == nil {
		logger.DPanic("reschedule timer fired but no evaluate function is set")
		return
	}

	err := q.locker.WithLock(ctx, entitylock.RescheduleKey(q.repo.String()), func(ctx context.Context) error {
		return q.locker.WithLock(ctx, entitylock.PullRequestKey(e.PRID), func(ctx context.Context) error {
			logger.Debug("running rescheduled evaluation", logfields.Event("rescheduled_evaluation_started"))
			evaluate(ctx, e)
			return nil
		})
	})
	if err != nil {
		logger.Warn(
			"rescheduled evaluation was not run, acquiring lock failed",
			logfields.Event("rescheduled_evaluation_lock_failed"),
			zap.Error(err),
		)
	}
}

// Locked returns the pull request in the merge slot or nil.
func (q *Queue) Locked() *Entry {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.slot
}

// Overflow returns the pull requests in the overflow queue in order.
func (q *Queue) Overflow() []*Entry {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.overflow.AsSlice()
}

// Contains reports if the pull request is in the merge slot or in the
// overflow queue.
func (q *Queue) Contains(prNumber int) (inSlot, inOverflow bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.slot != nil && q.slot.PRNumber == prNumber, q.overflow.Contains(prNumber)
}

// LockedWithBranch returns the pull request in the merge slot if its branch
// is one of branches, otherwise nil.
func (q *Queue) LockedWithBranch(branches []string) *Entry {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.slot == nil {
		return nil
	}

	if set.From(branches).Contains(q.slot.Branch) {
		return q.slot
	}

	return nil
}

// PendingReschedules returns the number of scheduled re-evaluations.
func (q *Queue) PendingReschedules() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.timers)
}

// Stop cancels all pending re-evaluations and waits until running ones
// finished. The queue content is kept.
func (q *Queue) Stop() {
	q.logger.Debug("terminating", logfields.Event("mergequeue_terminating"))

	q.lock.Lock()
	q.stopped = true
	for nr := range q.timers {
		q._stopTimer(nr)
	}
	q.lock.Unlock()

	q.running.Wait()

	q.logger.Debug("terminated", logfields.Event("mergequeue_terminated"))
}
