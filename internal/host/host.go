// Package host talks to the code-hosting platform. One logical operation
// set is implemented over two backend shapes: the primary REST API through
// go-github (with rate-limit retry), and an alternate API compatible with
// its routes reached over plain HTTP.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papapumpkin/comet/internal/fault"
	"github.com/papapumpkin/comet/internal/metrics"
)

// ErrUnsupported is returned by operations a backend does not provide.
var ErrUnsupported = errors.New("operation not supported by this backend")

// Kind names a backend shape.
type Kind string

const (
	KindPrimary   Kind = "primary"
	KindAlternate Kind = "alternate"
)

// Backend is the hosting backend resolved once at startup. BaseURL selects
// the alternate backend when set; for the primary backend it is ignored.
type Backend struct {
	Kind    Kind
	BaseURL string
	Token   string
	Owner   string
	Repo    string
}

// ResolveBackend turns the configured API URL into a Backend. An empty
// apiURL selects the primary backend.
func ResolveBackend(apiURL, token, repository string) (Backend, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return Backend{}, fault.Config("repository", fmt.Errorf("expected owner/name, got %q", repository))
	}
	if token == "" {
		return Backend{}, fault.Config("token", errors.New("hosting API token is empty"))
	}
	b := Backend{Kind: KindPrimary, Token: token, Owner: owner, Repo: repo}
	if apiURL = strings.TrimSpace(apiURL); apiURL != "" {
		b.Kind = KindAlternate
		b.BaseURL = strings.TrimRight(apiURL, "/")
	}
	return b, nil
}

// FullName returns owner/repo.
func (b Backend) FullName() string {
	return b.Owner + "/" + b.Repo
}

// Proposal is an open pull request as seen by the engine.
type Proposal struct {
	Number   int
	Title    string
	Body     string
	HTMLURL  string
	Base     string
	Head     string
	BaseRepo string
	HeadRepo string
}

// NewProposal holds the fields for creating a proposal.
type NewProposal struct {
	Base  string
	Head  string
	Title string
	Body  string
}

// Release is a hosted release record.
type Release struct {
	ID         int64
	Name       string
	TagName    string
	Body       string
	Prerelease bool
	HTMLURL    string
}

// NewRelease holds the fields for creating a release.
type NewRelease struct {
	Name       string
	TagName    string
	Body       string
	Prerelease bool
}

// Client is the uniform hosting API used by the orchestrators.
type Client interface {
	Kind() Kind
	// SearchOpenProposals returns open proposals from head into base, in
	// backend order.
	SearchOpenProposals(ctx context.Context, base, head string) ([]Proposal, error)
	CreateProposal(ctx context.Context, p NewProposal) (*Proposal, error)
	UpdateProposal(ctx context.Context, number int, title, body string) (*Proposal, error)
	// CanListReleases reports whether ListReleases is available.
	CanListReleases() bool
	ListReleases(ctx context.Context) ([]Release, error)
	CreateRelease(ctx context.Context, r NewRelease) (*Release, error)
}

// Options carries the collaborators shared by both backends.
type Options struct {
	HTTPClient *http.Client
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient == nil {
		return http.DefaultClient
	}
	return o.HTTPClient
}

// New builds the client for the resolved backend.
func New(b Backend, opts Options) (Client, error) {
	switch b.Kind {
	case KindPrimary:
		return NewPrimary(b, opts), nil
	case KindAlternate:
		return NewAlternate(b, opts), nil
	default:
		return nil, fault.Config("backend", fmt.Errorf("unknown backend kind %q", b.Kind))
	}
}
