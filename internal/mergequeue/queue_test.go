package mergequeue

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/flowerr"
)

const condCheckInterval = 5 * time.Millisecond
const condWaitTimeout = 5 * time.Second

var testRepo = RepositoryID{Owner: "testman", Repository: "repo"}

type evaluationRecorder struct {
	lock      sync.Mutex
	evaluated []int
}

func (r *evaluationRecorder) evaluate(_ context.Context, e *Entry) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.evaluated = append(r.evaluated, e.PRNumber)
}

func (r *evaluationRecorder) get() []int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]int(nil), r.evaluated...)
}

func mustNewEntry(t *testing.T, nr int) *Entry {
	t.Helper()

	e, err := NewEntry(int64(1000+nr), nr, "branch")
	require.NoError(t, err)

	return e
}

func newTestQueue(t *testing.T, rec *evaluationRecorder, delay time.Duration) *Queue {
	t.Helper()

	q := New(testRepo, entitylock.New(), rec.evaluate, WithRescheduleDelay(delay))
	t.Cleanup(q.Stop)

	return q
}

func overflowNumbers(q *Queue) []int {
	var result []int
	for _, e := range q.Overflow() {
		result = append(result, e.PRNumber)
	}

	return result
}

func TestTwoEligiblePRsAreSerialized(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	q := newTestQueue(t, rec, 10*time.Millisecond)

	pr10 := mustNewEntry(t, 10)
	pr11 := mustNewEntry(t, 11)

	require.True(t, q.TryAcquire(pr10))
	require.False(t, q.TryAcquire(pr11))
	require.True(t, q.Enqueue(pr11))

	assert.Equal(t, 10, q.Locked().PRNumber)
	assert.Equal(t, []int{11}, overflowNumbers(q))

	q.Release(pr10, "merged")

	assert.Equal(t, 11, q.Locked().PRNumber)
	assert.Empty(t, q.Overflow())

	require.Eventually(t,
		func() bool { return assert.ObjectsAreEqual([]int{11}, rec.get()) },
		condWaitTimeout, condCheckInterval,
	)
	assert.Equal(t, 0, q.PendingReschedules())
}

func TestEnqueueAfterSlotWasReleasedMovesIntoSlot(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	q := newTestQueue(t, rec, 10*time.Millisecond)

	pr10 := mustNewEntry(t, 10)
	pr11 := mustNewEntry(t, 11)

	// the handler of #11 saw the slot held, #10 is released before #11
	// is enqueued
	require.True(t, q.TryAcquire(pr10))
	require.False(t, q.TryAcquire(pr11))
	q.Release(pr10, "merged")
	require.True(t, q.Enqueue(pr11))

	require.NotNil(t, q.Locked())
	assert.Equal(t, 11, q.Locked().PRNumber)
	assert.Empty(t, q.Overflow())

	require.Eventually(t,
		func() bool { return assert.ObjectsAreEqual([]int{11}, rec.get()) },
		condWaitTimeout, condCheckInterval,
	)
}

func TestAcquireOrEnqueue(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := newTestQueue(t, &evaluationRecorder{}, time.Hour)

	acquired, enqueued := q.AcquireOrEnqueue(mustNewEntry(t, 10))
	assert.True(t, acquired)
	assert.False(t, enqueued)

	acquired, enqueued = q.AcquireOrEnqueue(mustNewEntry(t, 11))
	assert.False(t, acquired)
	assert.True(t, enqueued)

	acquired, enqueued = q.AcquireOrEnqueue(mustNewEntry(t, 11))
	assert.False(t, acquired)
	assert.False(t, enqueued, "pull request is already queued")

	acquired, enqueued = q.AcquireOrEnqueue(mustNewEntry(t, 10))
	assert.True(t, acquired)
	assert.False(t, enqueued)

	assert.Equal(t, []int{11}, overflowNumbers(q))
	assert.Equal(t, 0, q.PendingReschedules())
}

func TestConcurrentAcquireOrEnqueueAndReleaseNeverStrandOverflow(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	for i := 0; i < 100; i++ {
		q := New(testRepo, entitylock.New(), func(context.Context, *Entry) {}, WithRescheduleDelay(time.Hour))

		pr10 := mustNewEntry(t, 10)
		pr11 := mustNewEntry(t, 11)
		require.True(t, q.TryAcquire(pr10))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			q.AcquireOrEnqueue(pr11)
		}()
		go func() {
			defer wg.Done()
			q.Release(pr10, "merged")
		}()
		wg.Wait()

		require.NotNil(t, q.Locked())
		require.Equal(t, 11, q.Locked().PRNumber)
		require.Empty(t, q.Overflow())

		q.Stop()
	}
}

func TestReschedulesOfDifferentRepositoriesDoNotBlock(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	locker := entitylock.New()
	q := New(testRepo, locker, rec.evaluate, WithRescheduleDelay(time.Millisecond))
	t.Cleanup(q.Stop)

	otherRepo := RepositoryID{Owner: "testman", Repository: "other"}
	guard, err := locker.Lock(context.Background(), entitylock.RescheduleKey(otherRepo.String()))
	require.NoError(t, err)
	defer guard.Unlock()

	q.Reschedule(mustNewEntry(t, 1))

	require.Eventually(t,
		func() bool { return len(rec.get()) == 1 },
		condWaitTimeout, condCheckInterval,
	)
}

func TestTryAcquireIsReentrant(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := newTestQueue(t, &evaluationRecorder{}, time.Hour)

	require.True(t, q.TryAcquire(mustNewEntry(t, 1)))

	refetched, err := NewEntry(1001, 1, "renamed-branch")
	require.NoError(t, err)
	require.True(t, q.TryAcquire(refetched))
	assert.Equal(t, "renamed-branch", q.Locked().Branch)

	assert.False(t, q.Enqueue(refetched), "pr in slot must not be enqueued")
	assert.Empty(t, q.Overflow())
}

func TestEnqueueSkipsDuplicates(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := newTestQueue(t, &evaluationRecorder{}, time.Hour)

	require.True(t, q.TryAcquire(mustNewEntry(t, 1)))
	assert.True(t, q.Enqueue(mustNewEntry(t, 2)))
	assert.True(t, q.Enqueue(mustNewEntry(t, 3)))
	assert.False(t, q.Enqueue(mustNewEntry(t, 2)))

	assert.Equal(t, []int{2, 3}, overflowNumbers(q))
}

func TestReleaseOfNonHolderRemovesFromOverflow(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	q := newTestQueue(t, rec, time.Hour)

	require.True(t, q.TryAcquire(mustNewEntry(t, 1)))
	q.Enqueue(mustNewEntry(t, 2))
	q.Enqueue(mustNewEntry(t, 3))

	q.Release(mustNewEntry(t, 2), "label removed")
	assert.Equal(t, 1, q.Locked().PRNumber)
	assert.Equal(t, []int{3}, overflowNumbers(q))

	// not queued at all
	q.Release(mustNewEntry(t, 99), "label removed")
	assert.Equal(t, 1, q.Locked().PRNumber)
	assert.Equal(t, []int{3}, overflowNumbers(q))
	assert.Equal(t, 0, q.PendingReschedules())
}

func TestReleaseWithEmptyOverflowEmptiesSlot(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := newTestQueue(t, &evaluationRecorder{}, time.Hour)

	e := mustNewEntry(t, 1)
	require.True(t, q.TryAcquire(e))
	q.Release(e, "merged")

	assert.Nil(t, q.Locked())
	assert.Equal(t, 0, q.PendingReschedules())

	assert.True(t, q.TryAcquire(mustNewEntry(t, 2)))
}

func TestRescheduleReplacesPendingTimer(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	q := newTestQueue(t, rec, 50*time.Millisecond)

	e := mustNewEntry(t, 1)
	q.Reschedule(e)
	q.Reschedule(e)
	assert.Equal(t, 1, q.PendingReschedules())

	require.Eventually(t,
		func() bool { return len(rec.get()) == 1 },
		condWaitTimeout, condCheckInterval,
	)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []int{1}, rec.get())
}

func TestRescheduledEvaluationWaitsForPullRequestLock(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	locker := entitylock.New()
	q := New(testRepo, locker, rec.evaluate, WithRescheduleDelay(time.Millisecond))
	t.Cleanup(q.Stop)

	e := mustNewEntry(t, 1)

	guard, err := locker.Lock(context.Background(), entitylock.PullRequestKey(e.PRID))
	require.NoError(t, err)

	q.Reschedule(e)

	require.Eventually(t,
		func() bool { return locker.Waiting(entitylock.PullRequestKey(e.PRID)) == 2 },
		condWaitTimeout, condCheckInterval,
	)
	assert.Empty(t, rec.get())
	assert.Equal(t, 1, locker.Waiting(entitylock.RescheduleKey(testRepo.String())))

	guard.Unlock()

	require.Eventually(t,
		func() bool { return len(rec.get()) == 1 },
		condWaitTimeout, condCheckInterval,
	)
}

func TestRemovedPRTimerDoesNotFire(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	q := newTestQueue(t, rec, 20*time.Millisecond)

	e := mustNewEntry(t, 1)
	q.Reschedule(e)
	q.Remove(e.PRNumber, "closed")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.get())
}

func TestStopCancelsPendingReschedules(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rec := &evaluationRecorder{}
	q := New(testRepo, entitylock.New(), rec.evaluate, WithRescheduleDelay(20*time.Millisecond))

	q.Reschedule(mustNewEntry(t, 1))
	q.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.get())

	// rescheduling after stop is a no-op
	q.Reschedule(mustNewEntry(t, 2))
	assert.Equal(t, 0, q.PendingReschedules())
}

func TestRescheduleNilPanics(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := newTestQueue(t, &evaluationRecorder{}, time.Hour)

	defer func() {
		r := recover()
		_, ok := r.(*flowerr.InvariantViolationError)
		assert.True(t, ok, "expected invariant violation panic, got: %v", r)
	}()

	q.Reschedule(nil)
}

func TestLockedWithBranch(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := newTestQueue(t, &evaluationRecorder{}, time.Hour)
	assert.Nil(t, q.LockedWithBranch([]string{"branch"}))

	require.True(t, q.TryAcquire(mustNewEntry(t, 1)))
	assert.NotNil(t, q.LockedWithBranch([]string{"main", "branch"}))
	assert.Nil(t, q.LockedWithBranch([]string{"main"}))
}

// TestRandomOperationInterleavings runs random operation sequences and
// compares the queue with a simple reference model after every operation.
func TestRandomOperationInterleavings(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	rnd := rand.New(rand.NewSource(1))

	for run := 0; run < 50; run++ {
		q := New(testRepo, entitylock.New(), func(context.Context, *Entry) {}, WithRescheduleDelay(time.Hour))

		var slot int
		var overflow []int

		indexOf := func(nr int) int {
			for i, v := range overflow {
				if v == nr {
					return i
				}
			}
			return -1
		}

		for op := 0; op < 200; op++ {
			nr := rnd.Intn(6) + 1
			e := mustNewEntry(t, nr)

			switch rnd.Intn(4) {
			case 0:
				got := q.TryAcquire(e)
				want := slot == 0 || slot == nr
				require.Equal(t, want, got)
				if slot == 0 {
					slot = nr
				}

			case 1:
				got := q.Enqueue(e)
				want := slot != nr && indexOf(nr) < 0
				require.Equal(t, want, got)
				if slot == 0 {
					slot = nr
				} else if want {
					overflow = append(overflow, nr)
				}

			case 2:
				acquired, enqueued := q.AcquireOrEnqueue(e)
				wantAcquired := slot == 0 || slot == nr
				wantEnqueued := !wantAcquired && indexOf(nr) < 0
				require.Equal(t, wantAcquired, acquired)
				require.Equal(t, wantEnqueued, enqueued)
				if slot == 0 {
					slot = nr
				} else if wantEnqueued {
					overflow = append(overflow, nr)
				}

			case 3:
				q.Release(e, "test")
				if slot == nr {
					slot = 0
					if len(overflow) > 0 {
						slot = overflow[0]
						overflow = overflow[1:]
					}
				} else if i := indexOf(nr); i >= 0 {
					overflow = append(overflow[:i], overflow[i+1:]...)
				}
			}

			require.False(t, slot == 0 && len(overflow) > 0, "model: empty merge slot with queued pull requests")

			locked := q.Locked()
			if slot == 0 {
				require.Nil(t, locked)
				require.Empty(t, overflowNumbers(q))
			} else {
				require.NotNil(t, locked)
				require.Equal(t, slot, locked.PRNumber)
				require.NotContains(t, overflowNumbers(q), slot)
			}

			if len(overflow) == 0 {
				require.Empty(t, overflowNumbers(q))
			} else {
				require.Equal(t, overflow, overflowNumbers(q))
			}
		}

		q.Stop()
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
