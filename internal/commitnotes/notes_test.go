package commitnotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakingChanges(t *testing.T) {
	testcases := []struct {
		name    string
		message string
		want    []string
	}{
		{
			name:    "no footer",
			message: "feat: add endpoint\n\nsome details",
		},
		{
			name:    "header only",
			message: "feat!: BREAKING CHANGE: in header",
		},
		{
			name:    "single footer",
			message: "feat: drop v1 api\n\nBREAKING CHANGE: the v1 endpoints are removed",
			want:    []string{"the v1 endpoints are removed"},
		},
		{
			name:    "continuation lines are joined",
			message: "feat: drop v1 api\n\nBREAKING CHANGE: the v1 endpoints\nare removed\n\nReviewed-by: bob",
			want:    []string{"the v1 endpoints are removed"},
		},
		{
			name:    "multiple footers",
			message: "refactor: config\r\n\r\nBREAKING-CHANGE: key a renamed\r\nBREAKING CHANGE: key b removed",
			want:    []string{"key a renamed", "key b removed"},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BreakingChanges(tc.message))
		})
	}
}

func TestCollectAndRender(t *testing.T) {
	notes := Collect([]*Commit{
		{SHA: "c1", Message: "feat: a\n\nBREAKING CHANGE: a changed"},
		{SHA: "c2", Message: "fix: b"},
		{SHA: "c3", Message: "feat: c\n\nBREAKING CHANGE: c changed\nBREAKING CHANGE: c removed"},
	})

	assert.Equal(t, []*Note{
		{SHA: "c1", Text: "a changed"},
		{SHA: "c3", Text: "c changed"},
		{SHA: "c3", Text: "c removed"},
	}, notes)

	assert.Equal(t,
		"Breaking Changes:\n- a changed (c1)\n- c changed (c3)\n- c removed (c3)",
		Render(notes),
	)
}

func TestRenderWithoutNotesIsEmpty(t *testing.T) {
	assert.Empty(t, Render(nil))
	assert.Empty(t, Collect([]*Commit{{SHA: "c1", Message: "fix: b"}}))
}
