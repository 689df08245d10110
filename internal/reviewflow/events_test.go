package reviewflow

import (
	"fmt"

	"github.com/google/go-github/v59/github"
)

func newGithubRepo() *github.Repository {
	return &github.Repository{
		ID:   github.Int64(500),
		Name: github.String(repoName),
		Owner: &github.User{
			Login: github.String(repoOwner),
		},
	}
}

func newGithubUser(login string, id int64) *github.User {
	return &github.User{
		Login: github.String(login),
		ID:    github.Int64(id),
		Type:  github.String("User"),
	}
}

func newGithubBot(login string) *github.User {
	return &github.User{
		Login: github.String(login),
		ID:    github.Int64(9000),
		Type:  github.String("Bot"),
	}
}

func newGithubLabel(l testLabel) *github.Label {
	return &github.Label{
		ID:   github.Int64(l.id),
		Name: github.String(l.name),
	}
}

// newBasicPullRequest returns an open pull request of author alice.
func newBasicPullRequest(prNumber int, lbls ...testLabel) *github.PullRequest {
	pr := github.PullRequest{
		ID:     github.Int64(int64(1000 + prNumber)),
		Number: github.Int(prNumber),
		State:  github.String("open"),
		Title:  github.String("fix: crash on startup"),
		User:   newGithubUser("alice", 42),
		Base: &github.PullRequestBranch{
			Ref: github.String(baseRef),
		},
		Head: &github.PullRequestBranch{
			Ref:  github.String(fmt.Sprintf("feature-%d", prNumber)),
			SHA:  github.String(fmt.Sprintf("sha-%d", prNumber)),
			Repo: newGithubRepo(),
		},
	}

	for _, l := range lbls {
		pr.Labels = append(pr.Labels, newGithubLabel(l))
	}

	return &pr
}

func newPullRequestEvent(action string, pr *github.PullRequest, sender *github.User) *github.PullRequestEvent {
	return &github.PullRequestEvent{
		Action:      github.String(action),
		Number:      pr.Number,
		PullRequest: pr,
		Repo:        newGithubRepo(),
		Sender:      sender,
	}
}

func newPullRequestLabeledEvent(action string, pr *github.PullRequest, l testLabel, sender *github.User) *github.PullRequestEvent {
	ev := newPullRequestEvent(action, pr, sender)
	ev.Label = newGithubLabel(l)

	return ev
}

func newReviewRequestedEvent(action string, pr *github.PullRequest, sender, reviewer *github.User) *github.PullRequestEvent {
	ev := newPullRequestEvent(action, pr, sender)
	ev.RequestedReviewer = reviewer

	return ev
}

func newPullRequestReviewEvent(action, state string, pr *github.PullRequest, reviewer *github.User) *github.PullRequestReviewEvent {
	return &github.PullRequestReviewEvent{
		Action: github.String(action),
		Review: &github.PullRequestReview{
			State: github.String(state),
			User:  reviewer,
		},
		PullRequest: pr,
		Repo:        newGithubRepo(),
		Sender:      reviewer,
	}
}

func newIssueCommentEditedEvent(prNumber int, body, from string, sender *github.User) *github.IssueCommentEvent {
	return &github.IssueCommentEvent{
		Action: github.String("edited"),
		Issue: &github.Issue{
			Number:           github.Int(prNumber),
			PullRequestLinks: &github.PullRequestLinks{URL: github.String("https://api.github.com/pulls/1")},
		},
		Comment: &github.IssueComment{
			ID:   github.Int64(77),
			Body: github.String(body),
		},
		Changes: &github.EditChange{
			Body: &github.EditBody{From: github.String(from)},
		},
		Repo:   newGithubRepo(),
		Sender: sender,
	}
}

func newStatusEvent(state string, branches ...string) *github.StatusEvent {
	ev := github.StatusEvent{
		State: github.String(state),
		Repo:  newGithubRepo(),
	}

	for _, b := range branches {
		ev.Branches = append(ev.Branches, &github.Branch{Name: github.String(b)})
	}

	return &ev
}

func newCheckSuiteEvent(action, headBranch string) *github.CheckSuiteEvent {
	return &github.CheckSuiteEvent{
		Action: github.String(action),
		CheckSuite: &github.CheckSuite{
			HeadBranch: github.String(headBranch),
		},
		Repo: newGithubRepo(),
	}
}

func newCheckRunEvent(action, headBranch string) *github.CheckRunEvent {
	return &github.CheckRunEvent{
		Action: github.String(action),
		CheckRun: &github.CheckRun{
			CheckSuite: &github.CheckSuite{
				HeadBranch: github.String(headBranch),
			},
		},
		Repo: newGithubRepo(),
	}
}
