package logfields

import "go.uber.org/zap"

// Account is the login of the GitHub organisation or user a repository
// belongs to.
func Account(val string) zap.Field {
	return zap.String("github.account", val)
}

func ReviewGroup(val string) zap.Field {
	return zap.String("review_group", val)
}

func Reviewer(val string) zap.Field {
	return zap.String("github.reviewer", val)
}

func MergeableState(val string) zap.Field {
	return zap.String("github.mergeable_state", val)
}

func MergeMethod(val string) zap.Field {
	return zap.String("github.merge_method", val)
}

func CIStatusSummary(val string) zap.Field {
	return zap.String("github.ci_status", val)
}
