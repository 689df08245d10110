// Package retryer runs operations repeatedly until they succeed or fail
// with a permanent error.
package retryer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/flowerr"
	"github.com/simplesurance/reviewflow/internal/logfields"
)

// DefTimeout is the maximum duration an operation is retried when the
// passed context has no deadline.
const DefTimeout = 20 * time.Minute

const loggerName = "retryer"

// ErrStopped is returned by Run when the Retryer was stopped before the
// operation succeeded.
var ErrStopped = errors.New("retryer stopped")

// Retryer executes a function repeatedly until it was successful or cancel
// condition happened.
type Retryer struct {
	logger *zap.Logger

	defTimeout                 time.Duration
	backoffInitialInterval     time.Duration
	backoffRandomizationFactor float64
	backoffMaxInterval         time.Duration

	shutdownChan chan struct{}
}

type Option func(*Retryer)

// WithBackoffIntervals sets the initial and the maximal interval between
// retries.
func WithBackoffIntervals(initial, maxInterval time.Duration) Option {
	return func(r *Retryer) {
		r.backoffInitialInterval = initial
		r.backoffMaxInterval = maxInterval
	}
}

func New(opts ...Option) *Retryer {
	r := Retryer{
		logger:                     zap.L().Named(loggerName),
		defTimeout:                 DefTimeout,
		backoffInitialInterval:     5 * time.Second,
		backoffRandomizationFactor: backoff.DefaultRandomizationFactor,
		backoffMaxInterval:         5 * time.Minute,
		shutdownChan:               make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&r)
	}

	return &r
}

func logFieldResult(val string) zap.Field {
	return zap.String("operation_result", val)
}

func (r *Retryer) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval
	bo.RandomizationFactor = r.backoffRandomizationFactor
	bo.MaxInterval = r.backoffMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}

// Run executes fn until it was successful, it returned an error that
// does not wrap flowerr.RetryableError or the execution was aborted via the
// context.
// If ctx has no deadline, the retries are limited to DefTimeout.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, r.defTimeout)
		defer cancelFn()
	}

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := r.newBackoff()
	var lastErr error

	for {
		tryCnt++
		logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt))

		select {
		case <-ctx.Done():
			logger.Info(
				"operation execution cancelled",
				logfields.Event("operation_execution_cancelled"),
				logFieldResult("cancelled"),
				zap.NamedError("last_error", lastErr),
			)

			if lastErr != nil {
				return fmt.Errorf("%w, last error: %s", ctx.Err(), lastErr)
			}

			return ctx.Err()

		case <-retryTimer.C:
			err := fn(ctx)
			if err == nil {
				logger.Debug(
					"operation executed successfully",
					logfields.Event("operation_executed_successfully"),
					logFieldResult("success"),
				)

				return nil
			}

			lastErr = err
			logger = logger.With(zap.Error(err))

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info(
					"operation cancelled",
					logfields.Event("operation_cancelled"),
					logFieldResult("cancelled"),
				)

				return err
			}

			var retryError *flowerr.RetryableError
			if !errors.As(err, &retryError) {
				logger.Debug(
					"operation failed, not retryable",
					logfields.Event("operation_failed"),
					logFieldResult("failure"),
				)

				return err
			}

			retryIn := bo.NextBackOff()
			if !retryError.After.IsZero() {
				if d := time.Until(retryError.After); d > retryIn {
					retryIn = d
				}
			}

			if deadline, ok := ctx.Deadline(); ok && time.Now().Add(retryIn).After(deadline) && !retryError.After.IsZero() {
				logger.Info(
					"operation failed, next possible retry time is after the deadline",
					logfields.Event("operation_failed"),
					logFieldResult("failure"),
					zap.Time("earliest_allowed_retry", retryError.After),
				)

				return err
			}

			retryTimer.Reset(retryIn)
			logger.Info(
				"operation failed, retry scheduled",
				logfields.Event("operation_retry_scheduled"),
				zap.Duration("retry_in", retryIn),
				zap.Duration("age", bo.GetElapsedTime()),
			)

		case <-r.shutdownChan:
			logger.Info(
				"retryer terminating, operation not executed",
				logfields.Event("operation_execution_cancelled_retryer_terminated"),
				logFieldResult("cancelled"),
			)

			return ErrStopped
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
