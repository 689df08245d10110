package reviewflow

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/cfg"
	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/pullrequest"
	"github.com/simplesurance/reviewflow/internal/reviewgroup"
	"github.com/simplesurance/reviewflow/internal/titlerule"
)

// AccountContext holds the state that is shared by all repositories of a
// GitHub organization or user.
type AccountContext struct {
	Login      string
	Config     *cfg.AccountConfig
	Groups     *reviewgroup.Model
	Automation *pullrequest.AutomationMatcher
	TitleRules []*titlerule.Rule
	// Lock serializes operations on the same pull request. It is shared
	// with the merge queues of the account's repositories.
	Lock *entitylock.Locker

	LogFields []zap.Field
}

// NewAccountContext creates an AccountContext from the effective
// configuration of an account.
func NewAccountContext(accCfg *cfg.AccountConfig, locker *entitylock.Locker) (*AccountContext, error) {
	groups, err := reviewgroup.NewModel(accCfg.ReviewGroups())
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accCfg.Login, err)
	}

	automation, err := pullrequest.NewAutomationMatcher(accCfg.AutomationFilterQuery)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accCfg.Login, err)
	}

	titleRules, err := titlerule.Compile(accCfg.TitleRuleDefinitions())
	if err != nil {
		return nil, fmt.Errorf("account %s: title rules: %w", accCfg.Login, err)
	}

	return &AccountContext{
		Login:      accCfg.Login,
		Config:     accCfg,
		Groups:     groups,
		Automation: automation,
		TitleRules: titleRules,
		Lock:       locker,
		LogFields:  []zap.Field{logfields.Account(accCfg.Login)},
	}, nil
}

// MonitorsRepository returns true if name is one of the configured
// repositories of the account.
func (a *AccountContext) MonitorsRepository(name string) bool {
	for _, repo := range a.Config.Repositories {
		if strings.EqualFold(repo, name) {
			return true
		}
	}

	return false
}

// PrimaryGroup returns the first review group in evaluation order.
// Review labels of pull request lifecycle events (opened, reopened,
// closed) are applied for this group.
func (a *AccountContext) PrimaryGroup() (string, bool) {
	groups := a.Groups.Groups()
	if len(groups) == 0 {
		return "", false
	}

	return groups[0], true
}

func (a *AccountContext) String() string {
	return a.Login
}
