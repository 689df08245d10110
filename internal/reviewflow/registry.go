// Package reviewflow connects GitHub webhook events to the review label,
// options comment and merge queue handling of the monitored repositories.
package reviewflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/cfg"
	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/githubclt"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/notification"
	"github.com/simplesurance/reviewflow/internal/retryer"
)

const loggerName = "reviewflow"

// ErrNotMonitored is returned for accounts and repositories that are not
// configured.
var ErrNotMonitored = errors.New("not monitored")

// Registry owns the account and repository contexts.
// Repository contexts are created on first use.
type Registry struct {
	config *cfg.Config
	clt    githubclt.API
	sink   notification.Sink
	audit  auditlog.Store

	retryer *retryer.Retryer
	locker  *entitylock.Locker

	rescheduleDelay  time.Duration
	replaceThreshold int

	accounts map[string]*AccountContext
	repos    map[string]*RepoContext
	lock     sync.Mutex

	logger *zap.Logger
}

type RegistryOption func(*Registry)

// WithRetryer sets the Retryer that is used for GitHub API calls of
// handlers. The Registry stops it in Stop().
func WithRetryer(r *retryer.Retryer) RegistryOption {
	return func(reg *Registry) {
		reg.retryer = r
	}
}

// NewRegistry creates the account contexts of all configured accounts.
// audit can be nil.
func NewRegistry(config *cfg.Config, clt githubclt.API, sink notification.Sink, audit auditlog.Store, opts ...RegistryOption) (*Registry, error) {
	rescheduleDelay, err := config.RescheduleDelayDuration()
	if err != nil {
		return nil, err
	}

	reg := Registry{
		config:           config,
		clt:              clt,
		sink:             sink,
		audit:            audit,
		locker:           entitylock.New(),
		rescheduleDelay:  rescheduleDelay,
		replaceThreshold: config.ReplaceLabelsThreshold,
		accounts:         map[string]*AccountContext{},
		repos:            map[string]*RepoContext{},
		logger:           zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&reg)
	}

	if reg.retryer == nil {
		reg.retryer = retryer.New()
	}

	if reg.sink == nil {
		reg.sink = notification.NewLogSink()
	}

	for _, accCfg := range config.EffectiveAccounts() {
		acc, err := NewAccountContext(accCfg, reg.locker)
		if err != nil {
			return nil, err
		}

		reg.accounts[strings.ToLower(accCfg.Login)] = acc
	}

	return &reg, nil
}

// Account returns the context of the account with the given login.
func (r *Registry) Account(login string) (*AccountContext, error) {
	acc, exists := r.accounts[strings.ToLower(login)]
	if !exists {
		return nil, fmt.Errorf("account %s: %w", login, ErrNotMonitored)
	}

	return acc, nil
}

func repoKey(owner, name string) string {
	return strings.ToLower(owner + "/" + name)
}

// Repo returns the context of a repository. It is created when it does
// not exist yet.
// Creation runs while the account lock is held, the registry lock only
// guards the map. Events of existing repositories are not delayed by a
// slow creation.
func (r *Registry) Repo(ctx context.Context, owner, name string) (*RepoContext, error) {
	acc, err := r.Account(owner)
	if err != nil {
		return nil, err
	}

	if !acc.MonitorsRepository(name) {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotMonitored)
	}

	if repo := r.lookupRepo(owner, name); repo != nil {
		return repo, nil
	}

	var repo *RepoContext
	err = r.locker.WithLock(ctx, entitylock.AccountKey(acc.Login), func(ctx context.Context) error {
		var err error
		repo, err = r.bootstrapRepo(ctx, acc, owner, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *Registry) lookupRepo(owner, name string) *RepoContext {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.repos[repoKey(owner, name)]
}

// bootstrapRepo creates the context of a repository if it does not exist.
// The account lock of acc must be held.
func (r *Registry) bootstrapRepo(ctx context.Context, acc *AccountContext, owner, name string) (*RepoContext, error) {
	if repo := r.lookupRepo(owner, name); repo != nil {
		return repo, nil
	}

	repo, err := newRepoContext(ctx, acc, owner, name, &repoDependencies{
		clt:              r.clt,
		sink:             r.sink,
		audit:            r.audit,
		retryer:          r.retryer,
		rescheduleDelay:  r.rescheduleDelay,
		replaceThreshold: r.replaceThreshold,
	})
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	r.repos[repoKey(owner, name)] = repo
	r.lock.Unlock()

	r.logger.Info(
		"repository context created",
		logfields.Event("repository_context_created"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(name),
		zap.Stringer("review_groups", acc.Groups),
	)

	return repo, nil
}

// Repos returns the created repository contexts, ordered by name.
func (r *Registry) Repos() []*RepoContext {
	r.lock.Lock()
	defer r.lock.Unlock()

	result := make([]*RepoContext, 0, len(r.repos))
	for _, repo := range r.repos {
		result = append(result, repo)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})

	return result
}

// Locker returns the lock that serializes operations on pull requests.
func (r *Registry) Locker() *entitylock.Locker {
	return r.locker
}

// Stop cancels pending re-evaluations of all merge queues and aborts
// running retries.
func (r *Registry) Stop() {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, repo := range r.repos {
		repo.stop()
	}

	r.retryer.Stop()

	r.logger.Debug("registry stopped", logfields.Event("registry_stopped"))
}
