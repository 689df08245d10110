// Package cfg loads and validates the reviewflow configuration file.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/itchyny/gojq"
	"github.com/pelletier/go-toml"

	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/labels"
	"github.com/simplesurance/reviewflow/internal/reviewgroup"
	"github.com/simplesurance/reviewflow/internal/titlerule"
)

// Label keys of labels that have a fixed meaning.
const (
	LabelKeyFeatureBranch = "feature-branch"
	LabelKeySkipCI        = "merge/skip-ci"
	LabelKeyAutomerge     = "merge/automerge"
	LabelKeyUpdateBranch  = "merge/update-branch"

	// LabelKeyBreakingChanges is the builtin label that marks pull
	// requests with breaking change commit notes.
	LabelKeyBreakingChanges = "breaking-changes"
)

const (
	DefLogFormat       = "logfmt"
	DefLogTimeKey      = "time_iso8601"
	DefLogLevel        = "info"
	DefWebhookEndpoint = "/listener/github"
	DefEventWorkers    = 8
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	HTTPListenAddr            string            `toml:"http_server_listen_addr" validate:"required_without=HTTPSListenAddr"`
	HTTPSListenAddr           string            `toml:"https_server_listen_addr"`
	HTTPSCertFile             string            `toml:"https_ssl_cert_file" validate:"required_with=HTTPSListenAddr"`
	HTTPSKeyFile              string            `toml:"https_ssl_key_file" validate:"required_with=HTTPSListenAddr"`
	HTTPGithubWebhookEndpoint string            `toml:"github_webhook_endpoint" validate:"startswith=/"`
	GithubWebHookSecret       string            `toml:"github_webhook_secret"`
	GithubAPIToken            string            `toml:"github_api_token" validate:"required"`
	LogFormat                 string            `toml:"log_format" validate:"oneof=logfmt console json"`
	LogTimeKey                string            `toml:"log_time_key"`
	LogLevel                  string            `toml:"log_level" validate:"oneof=debug info warn error"`
	DryRun                    bool              `toml:"dry_run"`
	MetricsEndpoint           string            `toml:"metrics_endpoint" validate:"omitempty,startswith=/"`
	StatusEndpoint            string            `toml:"status_endpoint" validate:"omitempty,startswith=/"`
	EventWorkers              int               `toml:"event_workers" validate:"gte=1"`
	// RescheduleDelay is a duration string, e.g. "10s".
	RescheduleDelay           string            `toml:"reschedule_delay"`
	ReplaceLabelsThreshold    int               `toml:"replace_labels_threshold" validate:"gte=0"`
	PostgresDSN               string            `toml:"postgres_dsn"`
	SlackBotToken             string            `toml:"slack_bot_token"`
	// SlackChannel receives messages for users without a slack member ID.
	SlackChannel              string            `toml:"slack_channel"`
	SlackAPIURL               string            `toml:"slack_api_url" validate:"omitempty,url,endswith=/"`
	// SlackIDs maps GitHub logins to slack member IDs.
	SlackIDs                  map[string]string `toml:"slack_ids"`

	Defaults AccountConfig    `toml:"defaults"`
	Accounts []*AccountConfig `toml:"account" validate:"dive,required"`
}

type Team struct {
	Logins []string `toml:"logins" validate:"required"`
	Labels []string `toml:"labels"`
}

type LabelConfig struct {
	Name        string `toml:"name" validate:"required"`
	Color       string `toml:"color" validate:"omitempty,hexcolor"`
	Description string `toml:"description"`
}

// GroupLabelsConfig contains the label keys that represent the review
// states of a group.
type GroupLabelsConfig struct {
	NeedsReview      string `toml:"needs_review"`
	ReviewRequested  string `toml:"review_requested"`
	ChangesRequested string `toml:"changes_requested"`
	Approved         string `toml:"approved"`
}

// PROptions are the values of the pull request options that are used
// when a pull request does not define them.
type PROptions struct {
	FeatureBranch       *bool `toml:"feature_branch"`
	AutoMergeWithSkipCi *bool `toml:"auto_merge_with_skip_ci"`
	AutoMerge           *bool `toml:"auto_merge"`
	DeleteAfterMerge    *bool `toml:"delete_after_merge"`
}

// TitleRule is a regular expression the title of pull requests must
// match. InfoTitle and InfoURL can reference submatches of Pattern, e.g.
// "${1}".
type TitleRule struct {
	Pattern    string `toml:"pattern" validate:"required"`
	Status     string `toml:"status"`
	ErrorTitle string `toml:"error_title" validate:"required"`
	IgnoreBots bool   `toml:"ignore_bots"`
	InfoTitle  string `toml:"info_title"`
	InfoURL    string `toml:"info_url" validate:"required_with=InfoTitle"`
}

// AccountConfig is the configuration of a GitHub user or organization.
// Every field is optional, unset fields are taken from the [defaults]
// section by MergeAccountConfig.
type AccountConfig struct {
	Login        string   `toml:"login"`
	Repositories []string `toml:"repositories"`

	// Groups maps the name of a reviewer group to the logins of its
	// members.
	Groups        map[string][]string          `toml:"groups"`
	// GroupOrder defines the order in which groups are evaluated and
	// reported, groups missing in it are appended in alphabetical order.
	GroupOrder    []string                     `toml:"group_order"`
	WaitForGroups map[string][]string          `toml:"wait_for_groups"`
	Teams         map[string]Team              `toml:"teams" validate:"dive"`
	Labels        map[string]LabelConfig       `toml:"labels" validate:"dive"`
	GroupLabels   map[string]GroupLabelsConfig `toml:"group_labels"`

	PRDefaultOptions              PROptions `toml:"pr_default_options"`
	RequiresReviewRequest         *bool     `toml:"requires_review_request"`
	AutoMergeAutomationWithSkipCi *bool     `toml:"auto_merge_automation_with_skip_ci"`
	AutomergeLabel                string    `toml:"automerge_label"`
	UpdateBranchLabel             string    `toml:"update_branch_label"`
	AutomationFilterQuery         string    `toml:"automation_filter_query"`
	ProtectedLabels               []string  `toml:"protected_labels"`

	// TitleRules are checked when a pull request is opened or changed.
	TitleRules []TitleRule `toml:"title_rules" validate:"dive"`
	// BreakingChangesLabel is the key of the label that is added to pull
	// requests with breaking change commits. If it is empty, commit notes
	// are not maintained.
	BreakingChangesLabel string `toml:"breaking_changes_label"`
}

func boolPtr(v bool) *bool {
	return &v
}

// Load reads a TOML configuration, applies the default values and
// validates it.
func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.applyDefaults()

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Config) applyDefaults() {
	if c.LogFormat == "" {
		c.LogFormat = DefLogFormat
	}

	if c.LogTimeKey == "" {
		c.LogTimeKey = DefLogTimeKey
	}

	if c.LogLevel == "" {
		c.LogLevel = DefLogLevel
	}

	if c.HTTPGithubWebhookEndpoint == "" {
		c.HTTPGithubWebhookEndpoint = DefWebhookEndpoint
	}

	if c.EventWorkers == 0 {
		c.EventWorkers = DefEventWorkers
	}

	if c.ReplaceLabelsThreshold == 0 {
		c.ReplaceLabelsThreshold = labels.ReplaceLabelsThreshold
	}

	c.Defaults = *MergeAccountConfig(BuiltinAccountDefaults(), &c.Defaults)
}

// RescheduleDelayDuration returns the parsed RescheduleDelay, 0 if it is
// unset.
func (c *Config) RescheduleDelayDuration() (time.Duration, error) {
	if c.RescheduleDelay == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.RescheduleDelay)
	if err != nil {
		return 0, fmt.Errorf("reschedule_delay: %w", err)
	}

	if d < 0 {
		return 0, errors.New("reschedule_delay: must not be negative")
	}

	return d, nil
}

// Account returns the effective configuration of an account, the
// account section merged into the defaults.
// ok is false if the account is not configured.
func (c *Config) Account(login string) (*AccountConfig, bool) {
	for _, acc := range c.Accounts {
		if strings.EqualFold(acc.Login, login) {
			return MergeAccountConfig(&c.Defaults, acc), true
		}
	}

	return nil, false
}

// EffectiveAccounts returns the effective configuration of all
// accounts.
func (c *Config) EffectiveAccounts() []*AccountConfig {
	result := make([]*AccountConfig, 0, len(c.Accounts))

	for _, acc := range c.Accounts {
		result = append(result, MergeAccountConfig(&c.Defaults, acc))
	}

	return result
}

// Validate checks the configuration for missing and invalid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}

	if _, err := c.RescheduleDelayDuration(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("%w: no [[account]] section defined", ErrInvalidConfig)
	}

	seen := map[string]struct{}{}
	for i, acc := range c.Accounts {
		if acc.Login == "" {
			return fmt.Errorf("%w: account %d: login is empty", ErrInvalidConfig, i)
		}

		login := strings.ToLower(acc.Login)
		if _, exists := seen[login]; exists {
			return fmt.Errorf("%w: account %s: defined multiple times", ErrInvalidConfig, acc.Login)
		}
		seen[login] = struct{}{}

		if err := MergeAccountConfig(&c.Defaults, acc).validate(); err != nil {
			return fmt.Errorf("%w: account %s: %s", ErrInvalidConfig, acc.Login, err)
		}
	}

	return nil
}

func (a *AccountConfig) validate() error {
	if len(a.Repositories) == 0 {
		return errors.New("repositories: must contain at least 1 element")
	}

	for _, repo := range a.Repositories {
		if repo == "" || strings.Contains(repo, "/") {
			return fmt.Errorf("repositories: %q is not a repository name", repo)
		}
	}

	for name := range a.WaitForGroups {
		if _, exists := a.Groups[name]; !exists {
			return fmt.Errorf("wait_for_groups.%s: %w", name, reviewgroup.ErrUnknownGroup)
		}
	}

	if _, err := reviewgroup.NewModel(a.ReviewGroups()); err != nil {
		return err
	}

	labelExists := func(field, key string) error {
		if key == "" {
			return nil
		}

		if _, exists := a.Labels[key]; !exists {
			return fmt.Errorf("%s: label %q is not defined in labels", field, key)
		}

		return nil
	}

	for group, gl := range a.GroupLabels {
		if _, exists := a.Groups[group]; !exists {
			return fmt.Errorf("group_labels.%s: %w", group, reviewgroup.ErrUnknownGroup)
		}

		for _, key := range []string{gl.NeedsReview, gl.ReviewRequested, gl.ChangesRequested, gl.Approved} {
			if err := labelExists("group_labels."+group, key); err != nil {
				return err
			}
		}
	}

	for name, team := range a.Teams {
		for _, key := range team.Labels {
			if err := labelExists("teams."+name, key); err != nil {
				return err
			}
		}
	}

	for _, key := range a.ProtectedLabels {
		if err := labelExists("protected_labels", key); err != nil {
			return err
		}
	}

	if err := labelExists("automerge_label", a.AutomergeLabel); err != nil {
		return err
	}

	if err := labelExists("update_branch_label", a.UpdateBranchLabel); err != nil {
		return err
	}

	if err := labelExists("breaking_changes_label", a.BreakingChangesLabel); err != nil {
		return err
	}

	if _, err := titlerule.Compile(a.TitleRuleDefinitions()); err != nil {
		return fmt.Errorf("title_rules: %w", err)
	}

	for _, name := range a.GroupOrder {
		if _, exists := a.Groups[name]; !exists {
			return fmt.Errorf("group_order: %w: %s", reviewgroup.ErrUnknownGroup, name)
		}
	}

	if a.AutomationFilterQuery != "" {
		if _, err := gojq.Parse(a.AutomationFilterQuery); err != nil {
			return fmt.Errorf("automation_filter_query: %w", err)
		}
	}

	return nil
}

// BuiltinAccountDefaults returns the configuration values that are used
// when neither the account nor the [defaults] section defines them.
func BuiltinAccountDefaults() *AccountConfig {
	return &AccountConfig{
		Labels: map[string]LabelConfig{
			LabelKeyAutomerge:     {Name: ":soon: automerge", Color: "#64DD17"},
			LabelKeySkipCI:        {Name: "automerge/skip-ci", Color: "#e1e8ed"},
			LabelKeyUpdateBranch:  {Name: ":arrows_counterclockwise: update branch", Color: "#e1e8ed"},
			LabelKeyFeatureBranch: {Name: "feature-branch", Color: "#7FCEFF"},

			LabelKeyBreakingChanges: {Name: ":warning: Breaking Changes", Color: "#ef7934"},
		},
		PRDefaultOptions: PROptions{
			FeatureBranch:       boolPtr(false),
			AutoMergeWithSkipCi: boolPtr(false),
			AutoMerge:           boolPtr(false),
			DeleteAfterMerge:    boolPtr(true),
		},
		RequiresReviewRequest:         boolPtr(false),
		AutoMergeAutomationWithSkipCi: boolPtr(false),
		AutomergeLabel:                LabelKeyAutomerge,
		UpdateBranchLabel:             LabelKeyUpdateBranch,
	}
}

func mergeBool(base, override *bool) *bool {
	if override != nil {
		v := *override
		return &v
	}

	if base != nil {
		v := *base
		return &v
	}

	return nil
}

func mergeString(base, override string) string {
	if override != "" {
		return override
	}

	return base
}

func mergeSlice(base, override []string) []string {
	if override != nil {
		return append([]string{}, override...)
	}

	if base != nil {
		return append([]string{}, base...)
	}

	return nil
}

func mergeMap[V any](base, override map[string]V, cp func(V) V) map[string]V {
	if base == nil && override == nil {
		return nil
	}

	result := make(map[string]V, len(base)+len(override))

	for k, v := range base {
		result[k] = cp(v)
	}

	for k, v := range override {
		result[k] = cp(v)
	}

	return result
}

func copyStrings(v []string) []string {
	return append([]string{}, v...)
}

func copyTeam(t Team) Team {
	return Team{Logins: copyStrings(t.Logins), Labels: copyStrings(t.Labels)}
}

func identity[V any](v V) V {
	return v
}

// MergeAccountConfig returns a new AccountConfig that contains the fields
// of override and for fields that are unset in override the values of
// base. Maps are merged key by key, the value of override wins.
// Neither base nor override are modified.
func MergeAccountConfig(base, override *AccountConfig) *AccountConfig {
	if base == nil {
		base = &AccountConfig{}
	}

	if override == nil {
		override = &AccountConfig{}
	}

	return &AccountConfig{
		Login:         mergeString(base.Login, override.Login),
		Repositories:  mergeSlice(base.Repositories, override.Repositories),
		Groups:        mergeMap(base.Groups, override.Groups, copyStrings),
		GroupOrder:    mergeSlice(base.GroupOrder, override.GroupOrder),
		WaitForGroups: mergeMap(base.WaitForGroups, override.WaitForGroups, copyStrings),
		Teams:         mergeMap(base.Teams, override.Teams, copyTeam),
		Labels:        mergeMap(base.Labels, override.Labels, identity[LabelConfig]),
		GroupLabels:   mergeMap(base.GroupLabels, override.GroupLabels, identity[GroupLabelsConfig]),
		PRDefaultOptions: PROptions{
			FeatureBranch:       mergeBool(base.PRDefaultOptions.FeatureBranch, override.PRDefaultOptions.FeatureBranch),
			AutoMergeWithSkipCi: mergeBool(base.PRDefaultOptions.AutoMergeWithSkipCi, override.PRDefaultOptions.AutoMergeWithSkipCi),
			AutoMerge:           mergeBool(base.PRDefaultOptions.AutoMerge, override.PRDefaultOptions.AutoMerge),
			DeleteAfterMerge:    mergeBool(base.PRDefaultOptions.DeleteAfterMerge, override.PRDefaultOptions.DeleteAfterMerge),
		},
		RequiresReviewRequest:         mergeBool(base.RequiresReviewRequest, override.RequiresReviewRequest),
		AutoMergeAutomationWithSkipCi: mergeBool(base.AutoMergeAutomationWithSkipCi, override.AutoMergeAutomationWithSkipCi),
		AutomergeLabel:                mergeString(base.AutomergeLabel, override.AutomergeLabel),
		UpdateBranchLabel:             mergeString(base.UpdateBranchLabel, override.UpdateBranchLabel),
		AutomationFilterQuery:         mergeString(base.AutomationFilterQuery, override.AutomationFilterQuery),
		ProtectedLabels:               mergeSlice(base.ProtectedLabels, override.ProtectedLabels),
		TitleRules:                    mergeTitleRules(base.TitleRules, override.TitleRules),
		BreakingChangesLabel:          mergeString(base.BreakingChangesLabel, override.BreakingChangesLabel),
	}
}

func mergeTitleRules(base, override []TitleRule) []TitleRule {
	if override != nil {
		return append([]TitleRule{}, override...)
	}

	if base != nil {
		return append([]TitleRule{}, base...)
	}

	return nil
}

// TitleRuleDefinitions converts the title rule configuration.
func (a *AccountConfig) TitleRuleDefinitions() []titlerule.Definition {
	result := make([]titlerule.Definition, 0, len(a.TitleRules))

	for _, r := range a.TitleRules {
		result = append(result, titlerule.Definition{
			Pattern:    r.Pattern,
			Status:     r.Status,
			ErrorTitle: r.ErrorTitle,
			IgnoreBots: r.IgnoreBots,
			InfoTitle:  r.InfoTitle,
			InfoURL:    r.InfoURL,
		})
	}

	return result
}

// GroupNames returns the names of all groups in evaluation order.
func (a *AccountConfig) GroupNames() []string {
	result := make([]string, 0, len(a.Groups))
	seen := make(map[string]struct{}, len(a.Groups))

	for _, name := range a.GroupOrder {
		if _, exists := a.Groups[name]; !exists {
			continue
		}

		if _, exists := seen[name]; exists {
			continue
		}

		seen[name] = struct{}{}
		result = append(result, name)
	}

	var rest []string
	for name := range a.Groups {
		if _, exists := seen[name]; !exists {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	return append(result, rest...)
}

// ReviewGroups converts the group configuration.
func (a *AccountConfig) ReviewGroups() []*reviewgroup.Group {
	names := a.GroupNames()
	result := make([]*reviewgroup.Group, 0, len(names))

	for _, name := range names {
		result = append(result, &reviewgroup.Group{
			Name:    name,
			Members: copyStrings(a.Groups[name]),
			WaitFor: copyStrings(a.WaitForGroups[name]),
		})
	}

	return result
}

// LabelDefinitions converts the label configuration.
func (a *AccountConfig) LabelDefinitions() map[string]labels.Definition {
	result := make(map[string]labels.Definition, len(a.Labels))

	for key, l := range a.Labels {
		result[key] = labels.Definition{
			Name:        l.Name,
			Color:       l.Color,
			Description: l.Description,
		}
	}

	return result
}

// ReviewLabelKeys converts the group_labels configuration.
func (a *AccountConfig) ReviewLabelKeys() map[string]labels.GroupLabels {
	result := make(map[string]labels.GroupLabels, len(a.GroupLabels))

	for group, gl := range a.GroupLabels {
		m := labels.GroupLabels{}

		for key, val := range map[labels.ReviewKey]string{
			labels.NeedsReview:      gl.NeedsReview,
			labels.Requested:        gl.ReviewRequested,
			labels.ChangesRequested: gl.ChangesRequested,
			labels.Approved:         gl.Approved,
		} {
			if val != "" {
				m[key] = val
			}
		}

		result[group] = m
	}

	return result
}

// TeamDefinitions converts the teams configuration, ordered by team name.
func (a *AccountConfig) TeamDefinitions() []*labels.Team {
	names := make([]string, 0, len(a.Teams))
	for name := range a.Teams {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*labels.Team, 0, len(names))
	for _, name := range names {
		t := a.Teams[name]
		result = append(result, &labels.Team{
			Name:      name,
			Logins:    copyStrings(t.Logins),
			LabelKeys: copyStrings(t.Labels),
		})
	}

	return result
}

// DefaultOptions returns the pull request option defaults, unset options
// are false.
func (a *AccountConfig) DefaultOptions() commentbody.Options {
	val := func(b *bool) bool {
		return b != nil && *b
	}

	return commentbody.Options{
		commentbody.OptionFeatureBranch:       val(a.PRDefaultOptions.FeatureBranch),
		commentbody.OptionAutoMergeWithSkipCi: val(a.PRDefaultOptions.AutoMergeWithSkipCi),
		commentbody.OptionAutoMerge:           val(a.PRDefaultOptions.AutoMerge),
		commentbody.OptionDeleteAfterMerge:    val(a.PRDefaultOptions.DeleteAfterMerge),
	}
}

// OptionLabelKeys returns the label keys that represent pull request
// options.
func OptionLabelKeys(automergeLabel string) map[commentbody.OptionKey]string {
	return map[commentbody.OptionKey]string{
		commentbody.OptionFeatureBranch:       LabelKeyFeatureBranch,
		commentbody.OptionAutoMergeWithSkipCi: LabelKeySkipCI,
		commentbody.OptionAutoMerge:           automergeLabel,
	}
}

// RequiresReviewRequestEnabled returns the value of RequiresReviewRequest,
// false if it is unset.
func (a *AccountConfig) RequiresReviewRequestEnabled() bool {
	return a.RequiresReviewRequest != nil && *a.RequiresReviewRequest
}

// AutoMergeAutomationWithSkipCiEnabled returns the value of
// AutoMergeAutomationWithSkipCi, false if it is unset.
func (a *AccountConfig) AutoMergeAutomationWithSkipCiEnabled() bool {
	return a.AutoMergeAutomationWithSkipCi != nil && *a.AutoMergeAutomationWithSkipCi
}
