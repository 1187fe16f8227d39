package github

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
)

const listPageSize = 100

// Source exposes one GitHub repository as a ranked head source: branches,
// tags and open pull requests. Pull request heads are named "pr-<number>".
type Source struct {
	id     string
	owner  string
	repo   string
	client *github.Client
}

// NewSource creates a source over the given repository
func NewSource(id, owner, repo string, client *github.Client) *Source {
	return &Source{id: id, owner: owner, repo: repo, client: client}
}

// NewAppClient creates a GitHub client authenticated as a GitHub App
// installation
func NewAppClient(appID, installationID int64, privateKey []byte) (*github.Client, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport")
	}
	return github.NewClient(&http.Client{Transport: itr}), nil
}

// ID implements interfaces.Source
func (s *Source) ID() string { return s.id }

// ListHeads returns every branch, tag and open pull request of the
// repository
func (s *Source) ListHeads(ctx context.Context) ([]model.Head, error) {
	var heads []model.Head

	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: listPageSize}}
	for {
		branches, resp, err := s.client.Repositories.ListBranches(ctx, s.owner, s.repo, opts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list branches", goerr.V("repo", s.repoName()))
		}
		for _, b := range branches {
			heads = append(heads, model.Head{
				SourceID: s.id,
				Category: model.CategoryBranch,
				Name:     b.GetName(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	tagOpts := &github.ListOptions{PerPage: listPageSize}
	for {
		tags, resp, err := s.client.Repositories.ListTags(ctx, s.owner, s.repo, tagOpts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list tags", goerr.V("repo", s.repoName()))
		}
		for _, t := range tags {
			heads = append(heads, model.Head{
				SourceID: s.id,
				Category: model.CategoryTag,
				Name:     t.GetName(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		tagOpts.Page = resp.NextPage
	}

	prOpts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}
	for {
		prs, resp, err := s.client.PullRequests.List(ctx, s.owner, s.repo, prOpts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list pull requests", goerr.V("repo", s.repoName()))
		}
		for _, pr := range prs {
			heads = append(heads, model.Head{
				SourceID: s.id,
				Category: model.CategoryChangeRequest,
				Name:     "pr-" + strconv.Itoa(pr.GetNumber()),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		prOpts.Page = resp.NextPage
	}

	return heads, nil
}

// LookupHead probes for a single head without listing the repository
func (s *Source) LookupHead(ctx context.Context, category model.HeadCategory, name string) (model.Head, bool, error) {
	head := model.Head{SourceID: s.id, Category: category, Name: name}

	switch category {
	case model.CategoryBranch:
		_, resp, err := s.client.Repositories.GetBranch(ctx, s.owner, s.repo, name, 0)
		if notFound(resp, err) {
			return model.Head{}, false, nil
		}
		if err != nil {
			return model.Head{}, false, goerr.Wrap(err, "branch lookup failed",
				goerr.V("repo", s.repoName()), goerr.V("branch", name))
		}
		return head, true, nil

	case model.CategoryTag:
		_, resp, err := s.client.Git.GetRef(ctx, s.owner, s.repo, "tags/"+name)
		if notFound(resp, err) {
			return model.Head{}, false, nil
		}
		if err != nil {
			return model.Head{}, false, goerr.Wrap(err, "tag lookup failed",
				goerr.V("repo", s.repoName()), goerr.V("tag", name))
		}
		return head, true, nil

	case model.CategoryChangeRequest:
		number, ok := prNumber(name)
		if !ok {
			return model.Head{}, false, nil
		}
		pr, resp, err := s.client.PullRequests.Get(ctx, s.owner, s.repo, number)
		if notFound(resp, err) {
			return model.Head{}, false, nil
		}
		if err != nil {
			return model.Head{}, false, goerr.Wrap(err, "pull request lookup failed",
				goerr.V("repo", s.repoName()), goerr.V("number", number))
		}
		if pr.GetState() != "open" {
			return model.Head{}, false, nil
		}
		return head, true, nil
	}

	return model.Head{}, false, nil
}

// CurrentRevision returns the commit SHA the head currently points at
func (s *Source) CurrentRevision(ctx context.Context, head model.Head) (model.Revision, error) {
	switch head.Category {
	case model.CategoryBranch:
		branch, _, err := s.client.Repositories.GetBranch(ctx, s.owner, s.repo, head.Name, 0)
		if err != nil {
			return "", goerr.Wrap(err, "branch revision fetch failed",
				goerr.V("repo", s.repoName()), goerr.V("branch", head.Name))
		}
		return model.Revision(branch.GetCommit().GetSHA()), nil

	case model.CategoryTag:
		ref, _, err := s.client.Git.GetRef(ctx, s.owner, s.repo, "tags/"+head.Name)
		if err != nil {
			return "", goerr.Wrap(err, "tag revision fetch failed",
				goerr.V("repo", s.repoName()), goerr.V("tag", head.Name))
		}
		return model.Revision(ref.GetObject().GetSHA()), nil

	case model.CategoryChangeRequest:
		number, ok := prNumber(head.Name)
		if !ok {
			return "", goerr.New("malformed change request head name", goerr.V("name", head.Name))
		}
		pr, _, err := s.client.PullRequests.Get(ctx, s.owner, s.repo, number)
		if err != nil {
			return "", goerr.Wrap(err, "pull request revision fetch failed",
				goerr.V("repo", s.repoName()), goerr.V("number", number))
		}
		return model.Revision(pr.GetHead().GetSHA()), nil
	}

	return "", goerr.New("unknown head category", goerr.V("category", head.Category))
}

func (s *Source) repoName() string {
	return s.owner + "/" + s.repo
}

func notFound(resp *github.Response, err error) bool {
	return err != nil && resp != nil && resp.StatusCode == http.StatusNotFound
}

func prNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "pr-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var _ interfaces.Source = (*Source)(nil)
