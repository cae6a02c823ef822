package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/papapumpkin/comet/internal/fault"
	"github.com/papapumpkin/comet/internal/metrics"
)

// Primary implements Client over the hosting platform's REST API via go-github.
type Primary struct {
	gh      *github.Client
	owner   string
	repo    string
	retry   *retrier
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewPrimary creates a primary-backend client authenticated with b.Token.
func NewPrimary(b Backend, opts Options) *Primary {
	gh := github.NewClient(opts.httpClient()).WithAuthToken(b.Token)
	return newPrimary(gh, b.Owner, b.Repo, opts)
}

func newPrimary(gh *github.Client, owner, repo string, opts Options) *Primary {
	p := &Primary{
		gh:      gh,
		owner:   owner,
		repo:    repo,
		metrics: opts.Metrics,
		logger:  opts.logger(),
	}
	p.retry = &retrier{onRetry: p.logRetry}
	return p
}

func (p *Primary) logRetry(category string, wait time.Duration, err error) {
	p.metrics.RateLimitRetry(category)
	p.logger.Warn("rate limited by hosting API, retrying",
		slog.String("category", category),
		slog.Duration("wait", wait),
		slog.String("error", err.Error()))
}

// Kind returns KindPrimary.
func (p *Primary) Kind() Kind { return KindPrimary }

// call runs one API operation through the rate-limit retrier and converts
// the final error into a fault.KindAPI error.
func (p *Primary) call(ctx context.Context, op string, fn func() error) error {
	err := p.retry.do(ctx, func() error {
		err := fn()
		p.metrics.APIRequest(string(KindPrimary), op, err)
		return err
	})
	if err != nil {
		return apiError(op, err)
	}
	return nil
}

// SearchOpenProposals issues a server-side issue search restricted to open
// pull requests from head into base.
func (p *Primary) SearchOpenProposals(ctx context.Context, base, head string) ([]Proposal, error) {
	query := SearchQuery(p.owner+"/"+p.repo, base, head)
	var res *github.IssuesSearchResult
	err := p.call(ctx, "search proposals", func() error {
		var err error
		res, _, err = p.gh.Search.Issues(ctx, query, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Proposal, 0, len(res.Issues))
	for _, is := range res.Issues {
		out = append(out, Proposal{
			Number:  is.GetNumber(),
			Title:   is.GetTitle(),
			Body:    is.GetBody(),
			HTMLURL: is.GetHTMLURL(),
			Base:    base,
			Head:    head,
		})
	}
	return out, nil
}

// SearchQuery builds the search expression for open proposals from head into base.
func SearchQuery(fullName, base, head string) string {
	return fmt.Sprintf("repo:%s state:open head:%s base:%s is:pull-request", fullName, head, base)
}

// CreateProposal opens a pull request.
func (p *Primary) CreateProposal(ctx context.Context, np NewProposal) (*Proposal, error) {
	var pr *github.PullRequest
	err := p.call(ctx, "create proposal", func() error {
		var err error
		pr, _, err = p.gh.PullRequests.Create(ctx, p.owner, p.repo, &github.NewPullRequest{
			Base:  github.String(np.Base),
			Head:  github.String(np.Head),
			Title: github.String(np.Title),
			Body:  github.String(np.Body),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromPullRequest(pr), nil
}

// UpdateProposal replaces the title and body of an existing pull request.
func (p *Primary) UpdateProposal(ctx context.Context, number int, title, body string) (*Proposal, error) {
	var pr *github.PullRequest
	err := p.call(ctx, "update proposal", func() error {
		var err error
		pr, _, err = p.gh.PullRequests.Edit(ctx, p.owner, p.repo, number, &github.PullRequest{
			Title: github.String(title),
			Body:  github.String(body),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromPullRequest(pr), nil
}

// CanListReleases returns false: the primary backend creates releases
// without checking for existing ones.
func (p *Primary) CanListReleases() bool { return false }

// ListReleases is not provided by the primary backend.
func (p *Primary) ListReleases(context.Context) ([]Release, error) {
	return nil, ErrUnsupported
}

// CreateRelease creates a release for an existing tag.
func (p *Primary) CreateRelease(ctx context.Context, nr NewRelease) (*Release, error) {
	var rel *github.RepositoryRelease
	err := p.call(ctx, "create release", func() error {
		var err error
		rel, _, err = p.gh.Repositories.CreateRelease(ctx, p.owner, p.repo, &github.RepositoryRelease{
			Name:       github.String(nr.Name),
			TagName:    github.String(nr.TagName),
			Body:       github.String(nr.Body),
			Prerelease: github.Bool(nr.Prerelease),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Release{
		ID:         rel.GetID(),
		Name:       rel.GetName(),
		TagName:    rel.GetTagName(),
		Body:       rel.GetBody(),
		Prerelease: rel.GetPrerelease(),
		HTMLURL:    rel.GetHTMLURL(),
	}, nil
}

func fromPullRequest(pr *github.PullRequest) *Proposal {
	return &Proposal{
		Number:   pr.GetNumber(),
		Title:    pr.GetTitle(),
		Body:     pr.GetBody(),
		HTMLURL:  pr.GetHTMLURL(),
		Base:     pr.GetBase().GetRef(),
		Head:     pr.GetHead().GetRef(),
		BaseRepo: pr.GetBase().GetRepo().GetFullName(),
		HeadRepo: pr.GetHead().GetRepo().GetFullName(),
	}
}

// apiError converts a go-github error into a fault.KindAPI error carrying
// the HTTP status and request URL when a response exists.
func apiError(op string, err error) error {
	var resp *http.Response
	var (
		rle   *github.RateLimitError
		abuse *github.AbuseRateLimitError
		er    *github.ErrorResponse
	)
	switch {
	case errors.As(err, &rle):
		resp = rle.Response
	case errors.As(err, &abuse):
		resp = abuse.Response
	case errors.As(err, &er):
		resp = er.Response
	}
	if resp == nil {
		return fault.API(op, 0, "", "", err)
	}
	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}
	return fault.API(op, resp.StatusCode, http.StatusText(resp.StatusCode), url, err)
}
