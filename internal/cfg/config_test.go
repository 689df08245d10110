package cfg

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/labels"
	"github.com/simplesurance/reviewflow/internal/reviewgroup"
)

const minimalCfg = `
http_server_listen_addr = ":8084"
github_api_token = "123"

[[account]]
login = "octocat"
repositories = ["repo"]
`

func mustLoadExampleConfig(t *testing.T) *Config {
	t.Helper()

	f, err := os.Open("testdata/config.toml")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	config, err := Load(f)
	require.NoError(t, err)

	return config
}

func TestLoadExampleConfig(t *testing.T) {
	config := mustLoadExampleConfig(t)

	assert.Equal(t, ":8084", config.HTTPListenAddr)
	assert.Equal(t, "/listener/github", config.HTTPGithubWebhookEndpoint)
	assert.Equal(t, 8, config.EventWorkers)
	assert.Equal(t, "/status", config.StatusEndpoint)

	d, err := config.RescheduleDelayDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	acc, ok := config.Account("Octo-Org")
	require.True(t, ok)

	assert.Equal(t, "octo-org", acc.Login)
	assert.Equal(t, []string{"backend", "frontend"}, acc.Repositories)
	assert.Equal(t, []string{"dev", "design"}, acc.GroupNames())
	assert.Equal(t, []string{"alice", "bob"}, acc.Groups["dev"])
	assert.True(t, acc.RequiresReviewRequestEnabled())
	assert.Equal(t, LabelKeyAutomerge, acc.AutomergeLabel)

	require.Contains(t, acc.Labels, "code/approved")
	require.Contains(t, acc.Labels, "teams/backend")
	require.Contains(t, acc.Labels, LabelKeyAutomerge)

	groups := acc.ReviewGroups()
	require.Len(t, groups, 2)
	assert.Equal(t, "design", groups[1].Name)
	assert.Equal(t, []string{"dev"}, groups[1].WaitFor)

	_, err = reviewgroup.NewModel(groups)
	require.NoError(t, err)

	assert.Equal(t, labels.GroupLabels{
		labels.NeedsReview:      "code/needs-review",
		labels.Requested:        "code/review-requested",
		labels.ChangesRequested: "code/changes-requested",
		labels.Approved:         "code/approved",
	}, acc.ReviewLabelKeys()["dev"])

	teams := acc.TeamDefinitions()
	require.Len(t, teams, 1)
	assert.Equal(t, "backends", teams[0].Name)
	assert.Equal(t, []string{"teams/backend"}, teams[0].LabelKeys)

	assert.Equal(t, commentbody.Options{
		commentbody.OptionFeatureBranch:       false,
		commentbody.OptionAutoMergeWithSkipCi: false,
		commentbody.OptionAutoMerge:           false,
		commentbody.OptionDeleteAfterMerge:    true,
	}, acc.DefaultOptions())

	assert.Equal(t, LabelKeyBreakingChanges, acc.BreakingChangesLabel)
	require.Contains(t, acc.Labels, LabelKeyBreakingChanges)

	rules := acc.TitleRuleDefinitions()
	require.Len(t, rules, 2)
	assert.Equal(t, "jira-issue", rules[1].Status)
	assert.True(t, rules[1].IgnoreBots)
	assert.Equal(t, "https://jira.example.com/browse/${1}", rules[1].InfoURL)

	_, ok = config.Account("unknown")
	assert.False(t, ok)
}

func TestLoadAppliesDefaults(t *testing.T) {
	config, err := Load(strings.NewReader(minimalCfg))
	require.NoError(t, err)

	assert.Equal(t, DefLogFormat, config.LogFormat)
	assert.Equal(t, DefLogTimeKey, config.LogTimeKey)
	assert.Equal(t, DefLogLevel, config.LogLevel)
	assert.Equal(t, DefWebhookEndpoint, config.HTTPGithubWebhookEndpoint)
	assert.Equal(t, DefEventWorkers, config.EventWorkers)
	assert.Equal(t, labels.ReplaceLabelsThreshold, config.ReplaceLabelsThreshold)

	d, err := config.RescheduleDelayDuration()
	require.NoError(t, err)
	assert.Zero(t, d)

	accs := config.EffectiveAccounts()
	require.Len(t, accs, 1)
	assert.Equal(t, LabelKeyUpdateBranch, accs[0].UpdateBranchLabel)
	assert.False(t, accs[0].RequiresReviewRequestEnabled())
	assert.True(t, accs[0].DefaultOptions()[commentbody.OptionDeleteAfterMerge])
	assert.Empty(t, accs[0].GroupNames())
}

func TestMergeAccountConfig(t *testing.T) {
	base := &AccountConfig{
		Repositories: []string{"a"},
		Groups: map[string][]string{
			"dev":    {"alice"},
			"design": {"carol"},
		},
		Labels: map[string]LabelConfig{
			"bug":     {Name: "bug"},
			"feature": {Name: "feature"},
		},
		PRDefaultOptions: PROptions{
			AutoMerge:        boolPtr(false),
			DeleteAfterMerge: boolPtr(true),
		},
		RequiresReviewRequest: boolPtr(true),
		AutomergeLabel:        "merge/automerge",
	}

	override := &AccountConfig{
		Login: "octocat",
		Groups: map[string][]string{
			"dev": {"bob"},
		},
		Labels: map[string]LabelConfig{
			"bug": {Name: "🐛 bug"},
		},
		PRDefaultOptions: PROptions{
			AutoMerge: boolPtr(true),
		},
		RequiresReviewRequest: boolPtr(false),
	}

	merged := MergeAccountConfig(base, override)

	assert.Equal(t, "octocat", merged.Login)
	assert.Equal(t, []string{"a"}, merged.Repositories)
	assert.Equal(t, map[string][]string{"dev": {"bob"}, "design": {"carol"}}, merged.Groups)
	assert.Equal(t, "🐛 bug", merged.Labels["bug"].Name)
	assert.Equal(t, "feature", merged.Labels["feature"].Name)
	assert.True(t, *merged.PRDefaultOptions.AutoMerge)
	assert.True(t, *merged.PRDefaultOptions.DeleteAfterMerge)
	assert.Nil(t, merged.PRDefaultOptions.FeatureBranch)
	assert.False(t, merged.RequiresReviewRequestEnabled())
	assert.Equal(t, "merge/automerge", merged.AutomergeLabel)

	merged.Groups["dev"][0] = "mallory"
	*merged.PRDefaultOptions.AutoMerge = false

	assert.Equal(t, []string{"bob"}, override.Groups["dev"])
	assert.Equal(t, []string{"alice"}, base.Groups["dev"])
	assert.True(t, *override.PRDefaultOptions.AutoMerge)
}

func TestMergeAccountConfigWithNil(t *testing.T) {
	merged := MergeAccountConfig(nil, &AccountConfig{Login: "x"})
	assert.Equal(t, "x", merged.Login)
	assert.Nil(t, merged.Groups)

	merged = MergeAccountConfig(&AccountConfig{Login: "y"}, nil)
	assert.Equal(t, "y", merged.Login)
}

func TestGroupNamesOrder(t *testing.T) {
	acc := AccountConfig{
		Groups: map[string][]string{
			"ops":    nil,
			"dev":    nil,
			"design": nil,
			"qa":     nil,
		},
		GroupOrder: []string{"design", "dev", "design"},
	}

	assert.Equal(t, []string{"design", "dev", "ops", "qa"}, acc.GroupNames())
}

func TestValidationErrors(t *testing.T) {
	testcases := []struct {
		name string
		cfg  string
	}{
		{
			name: "missing token",
			cfg: `
http_server_listen_addr = ":8084"
[[account]]
login = "octocat"
repositories = ["repo"]
`,
		},
		{
			name: "no listen address",
			cfg: `
github_api_token = "123"
[[account]]
login = "octocat"
repositories = ["repo"]
`,
		},
		{
			name: "https without certificate",
			cfg: `
https_server_listen_addr = ":443"
github_api_token = "123"
[[account]]
login = "octocat"
repositories = ["repo"]
`,
		},
		{
			name: "unsupported log format",
			cfg: `log_format = "xml"
` + minimalCfg,
		},
		{
			name: "no accounts",
			cfg: `
http_server_listen_addr = ":8084"
github_api_token = "123"
`,
		},
		{
			name: "duplicate account",
			cfg: minimalCfg + `
[[account]]
login = "OctoCat"
repositories = ["repo"]
`,
		},
		{
			name: "account without repositories",
			cfg: minimalCfg + `
[[account]]
login = "other"
`,
		},
		{
			name: "repository with owner",
			cfg: minimalCfg + `
[[account]]
login = "other"
repositories = ["other/repo"]
`,
		},
		{
			name: "invalid reschedule delay",
			cfg: `
http_server_listen_addr = ":8084"
github_api_token = "123"
reschedule_delay = "soon"
[[account]]
login = "octocat"
repositories = ["repo"]
`,
		},
		{
			name: "cyclic wait for groups",
			cfg: minimalCfg + `
[account.groups]
dev = ["alice"]
design = ["carol"]
[account.wait_for_groups]
dev = ["design"]
design = ["dev"]
`,
		},
		{
			name: "wait for unknown group",
			cfg: minimalCfg + `
[account.groups]
dev = ["alice"]
[account.wait_for_groups]
dev = ["ops"]
`,
		},
		{
			name: "group labels reference undefined label",
			cfg: minimalCfg + `
[account.groups]
dev = ["alice"]
[account.group_labels.dev]
approved = "code/approved"
`,
		},
		{
			name: "label without name",
			cfg: minimalCfg + `
[account.labels.bug]
color = "#ff0000"
`,
		},
		{
			name: "slack api url without trailing slash",
			cfg: `slack_api_url = "https://slack.example.com/api"
` + minimalCfg,
		},
		{
			name: "invalid title rule pattern",
			cfg: minimalCfg + `
[[account.title_rules]]
pattern = "("
error_title = "invalid"
`,
		},
		{
			name: "title rule without error title",
			cfg: minimalCfg + `
[[account.title_rules]]
pattern = "^feat"
`,
		},
		{
			name: "title rule info without url",
			cfg: minimalCfg + `
[[account.title_rules]]
pattern = "(X-1)"
error_title = "invalid"
info_title = "${1}"
`,
		},
		{
			name: "undefined breaking changes label",
			cfg: minimalCfg + `breaking_changes_label = "nope"
`,
		},
		{
			name: "invalid automation query",
			cfg: minimalCfg + `
automation_filter_query = ".head.ref | startswith("
`,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.cfg))
			require.Error(t, err)
		})
	}
}

func TestOptionLabelKeys(t *testing.T) {
	keys := OptionLabelKeys("custom/automerge")

	assert.Equal(t, "custom/automerge", keys[commentbody.OptionAutoMerge])
	assert.Equal(t, LabelKeySkipCI, keys[commentbody.OptionAutoMergeWithSkipCi])
	assert.NotContains(t, keys, commentbody.OptionDeleteAfterMerge)
}
