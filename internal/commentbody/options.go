package commentbody

import (
	"fmt"
	"regexp"
	"strings"
)

// OptionKey identifies a boolean pull request option.
type OptionKey string

const (
	OptionFeatureBranch       OptionKey = "featureBranch"
	OptionAutoMergeWithSkipCi OptionKey = "autoMergeWithSkipCi"
	OptionAutoMerge           OptionKey = "autoMerge"
	OptionDeleteAfterMerge    OptionKey = "deleteAfterMerge"
)

// OptionKeys contains all option keys in rendering order.
var OptionKeys = []OptionKey{
	OptionFeatureBranch,
	OptionAutoMergeWithSkipCi,
	OptionAutoMerge,
	OptionDeleteAfterMerge,
}

var optionLabels = map[OptionKey]string{
	OptionFeatureBranch:       "This PR is a feature branch",
	OptionAutoMergeWithSkipCi: "Add `[skip ci]` on merge commit",
	OptionAutoMerge:           `Auto merge when this PR is ready and has no failed statuses. (Also has a queue per repo to prevent multiple useless "Update branch" triggers)`,
	OptionDeleteAfterMerge:    "Automatic branch delete after this PR is merged",
}

var optionRegexps = func() map[OptionKey]*regexp.Regexp {
	result := make(map[OptionKey]*regexp.Regexp, len(OptionKeys))

	for _, key := range OptionKeys {
		result[key] = regexp.MustCompile(`\[([ xX]?)]\s*` + regexp.QuoteMeta(marker(key)))
	}

	return result
}()

func marker(key OptionKey) string {
	return "<!-- reviewflow-" + string(key) + " -->"
}

// Label returns the text shown next to the checkbox of the option.
func (k OptionKey) Label() string {
	return optionLabels[k]
}

// ParseOptionKey returns the OptionKey with the name s.
func ParseOptionKey(s string) (OptionKey, error) {
	for _, key := range OptionKeys {
		if string(key) == s {
			return key, nil
		}
	}

	return "", fmt.Errorf("unknown option: %q", s)
}

// Options maps option keys to their values.
// A missing key is false.
type Options map[OptionKey]bool

// Clone returns a copy of o that contains every known key.
func (o Options) Clone() Options {
	result := make(Options, len(OptionKeys))

	for _, key := range OptionKeys {
		result[key] = o[key]
	}

	return result
}

// Merge returns a copy of o with the values of update applied.
func (o Options) Merge(update Options) Options {
	result := o.Clone()

	for k, v := range update {
		result[k] = v
	}

	return result
}

// Equal compares the values of all known keys.
func (o Options) Equal(other Options) bool {
	for _, key := range OptionKeys {
		if o[key] != other[key] {
			return false
		}
	}

	return true
}

func (o Options) String() string {
	var sb strings.Builder

	for i, key := range OptionKeys {
		if i > 0 {
			sb.WriteString(", ")
		}

		fmt.Fprintf(&sb, "%s: %t", key, o[key])
	}

	return sb.String()
}

// ParseOptions reads the checkbox values of all options from a comment
// body. The checkboxes are searched in the options section, if the body
// has none the whole body is searched. Options without a checkbox get
// their value from defaults.
func ParseOptions(body string, defaults Options) Options {
	if idx := strings.LastIndex(body, headerOptions); idx >= 0 {
		body = body[idx:]
	}

	result := make(Options, len(OptionKeys))

	for _, key := range OptionKeys {
		m := optionRegexps[key].FindStringSubmatch(body)
		if m == nil {
			result[key] = defaults[key]
			continue
		}

		result[key] = m[1] == "x" || m[1] == "X"
	}

	return result
}

// RenderOptions renders the checkbox list of all options.
func RenderOptions(opts Options) string {
	lines := make([]string, 0, len(OptionKeys))

	for _, key := range OptionKeys {
		check := " "
		if opts[key] {
			check = "x"
		}

		lines = append(lines, fmt.Sprintf("- [%s] %s%s", check, marker(key), key.Label()))
	}

	return strings.Join(lines, "\n")
}
