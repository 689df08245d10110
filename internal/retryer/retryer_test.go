package retryer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/reviewflow/internal/flowerr"
)

func TestRetryerDefaultTimeout(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New()
	t.Cleanup(r.Stop)

	r.defTimeout = time.Second

	start := time.Now()
	err := r.Run(context.Background(), func(context.Context) error {
		return flowerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	assert.ErrorIsf(t, err, context.DeadlineExceeded, "err: %+v", err)
	assert.Less(t, time.Since(start), r.defTimeout+time.Second)
}

func TestRetryAfterInThePast(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New()
	r.backoffInitialInterval = 100 * time.Millisecond
	t.Cleanup(r.Stop)

	ctx, cancelFunc := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFunc()

	var retryTimes []time.Time

	err := r.Run(ctx, func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		return flowerr.NewRetryableError(errors.New("err"), time.Now().Add(-time.Second))
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.GreaterOrEqual(t, len(retryTimes), 2)

	for i := 1; i < len(retryTimes); i++ {
		d := retryTimes[i].Sub(retryTimes[i-1])
		require.GreaterOrEqualf(t, int64(d), minInterval(r),
			"time between retry %d and %d is %s, expected >=%s",
			i-1, i, d, time.Duration(minInterval(r)),
		)
	}
}

func TestNonRetryableErrorIsReturnedImmediately(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New()
	t.Cleanup(r.Stop)

	wantErr := errors.New("422 unprocessable")
	var calls int

	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	}, nil)

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestRetriesUntilSuccess(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New()
	r.backoffInitialInterval = 10 * time.Millisecond
	t.Cleanup(r.Stop)

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return flowerr.NewRetryableAnytimeError(errors.New("502"))
		}

		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStopAbortsPendingRetry(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New()
	r.backoffInitialInterval = time.Hour

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(context.Background(), func(context.Context) error {
			return flowerr.NewRetryableAnytimeError(errors.New("502"))
		}, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	r.Stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func minInterval(retryer *Retryer) int64 {
	return int64(math.Floor(float64(retryer.backoffInitialInterval) * (1 - retryer.backoffRandomizationFactor)))
}

func TestWithBackoffIntervals(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithBackoffIntervals(time.Millisecond, 2*time.Millisecond))

	var tries int
	err := r.Run(context.Background(), func(context.Context) error {
		tries++
		if tries < 5 {
			return flowerr.NewRetryableAnytimeError(errors.New("transient"))
		}

		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 5, tries)
}
