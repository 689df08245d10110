package reviewflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/automerge"
	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/logfields"
)

// InitSync evaluates the open pull requests with the automerge label of
// all monitored repositories.
// It is intended to be run once before events are processed, to recover
// the merge queues after a restart.
func (r *Registry) InitSync(ctx context.Context) error {
	for _, accCfg := range r.config.EffectiveAccounts() {
		if err := r.SyncAccount(ctx, accCfg.Login); err != nil {
			return err
		}
	}

	return nil
}

// SyncAccount creates the contexts of the repositories of an account and
// evaluates their open pull requests.
// The account lock is held for the whole synchronization, concurrent
// synchronizations and repository creations of the account wait for it.
func (r *Registry) SyncAccount(ctx context.Context, login string) error {
	acc, err := r.Account(login)
	if err != nil {
		return err
	}

	return r.locker.WithLock(ctx, entitylock.AccountKey(acc.Login), func(ctx context.Context) error {
		for _, name := range acc.Config.Repositories {
			repo, err := r.bootstrapRepo(ctx, acc, acc.Login, name)
			if err != nil {
				return fmt.Errorf("syncing %s/%s failed: %w", acc.Login, name, err)
			}

			if err := repo.sync(ctx); err != nil {
				return fmt.Errorf("syncing %s failed: %w", repo, err)
			}
		}

		return nil
	})
}

func (r *RepoContext) sync(ctx context.Context) error {
	stats := syncStat{StartTime: time.Now()}

	automergeLabel, hasAutomergeLabel := r.Labels.Label(r.Config.AutomergeLabel)
	if !hasAutomergeLabel {
		r.logger.Info(
			"skipping synchronization, automerge label does not exist in repository",
			logfields.Event("initial_sync_skipped"),
		)

		return nil
	}

	r.logger.Info("starting synchronization", logfields.Event("initial_sync_started"))

	it := r.clt.ListPullRequests(ctx, r.Owner, r.Name, "open", "created", "asc")
	for {
		var ghPR *github.PullRequest

		err := r.retryer.Run(ctx, func(context.Context) error {
			var err error
			ghPR, err = it.Next()
			return err
		}, []zap.Field{logfields.Event("github_list_pull_requests")})
		if err != nil {
			return err
		}

		if ghPR == nil {
			break
		}

		stats.Seen++

		logger := r.logger.With(logfields.PullRequest(ghPR.GetNumber()))

		pr, err := r.snapshot(ctx, ghPR)
		if err != nil {
			stats.Failures++
			logger.Warn(
				"ignoring pull request, converting it failed",
				logfields.Event("initial_sync_pr_ignored"),
				zap.Error(err),
			)
			continue
		}

		if !pr.LabelSet().Has(automergeLabel) {
			continue
		}

		var res automerge.Result
		err = r.WithPullRequestLock(ctx, pr.ID, func(ctx context.Context) error {
			res = r.Engine.Evaluate(ctx, pr)
			return nil
		})
		if err != nil {
			stats.Failures++
			logger.Warn(
				"evaluating pull request failed",
				logfields.Event("initial_sync_evaluation_failed"),
				zap.Error(err),
			)
			continue
		}

		stats.Evaluated++

		switch res.State {
		case automerge.Active, automerge.Queued:
			stats.Queued++
		case automerge.Merged:
			stats.Merged++
		}

		logger.Debug(
			"pull request evaluated",
			logfields.Event("initial_sync_pr_evaluated"),
			zap.Stringer("result", res),
		)
	}

	stats.EndTime = time.Now()

	r.logger.Info(
		"synchronization finished",
		append([]zap.Field{logfields.Event("initial_sync_finished")}, stats.LogFields()...)...,
	)

	return nil
}
