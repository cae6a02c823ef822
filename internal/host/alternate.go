package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/papapumpkin/comet/internal/fault"
	"github.com/papapumpkin/comet/internal/metrics"
)

// Page bounds for the alternate backend's list calls. Listing stops after
// MaxPages pages and logs that the result was truncated.
const (
	DefaultPageSize = 50
	DefaultMaxPages = 20
)

// Alternate implements Client over plain HTTP against an API that mirrors
// the primary backend's repository routes. It has no rate-limit handling.
type Alternate struct {
	BaseURL  string
	PageSize int
	MaxPages int

	token   string
	owner   string
	repo    string
	http    *http.Client
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewAlternate creates an alternate-backend client rooted at b.BaseURL.
func NewAlternate(b Backend, opts Options) *Alternate {
	return &Alternate{
		BaseURL:  strings.TrimRight(b.BaseURL, "/"),
		PageSize: DefaultPageSize,
		MaxPages: DefaultMaxPages,
		token:    b.Token,
		owner:    b.Owner,
		repo:     b.Repo,
		http:     opts.httpClient(),
		metrics:  opts.Metrics,
		logger:   opts.logger(),
	}
}

// Kind returns KindAlternate.
func (a *Alternate) Kind() Kind { return KindAlternate }

type apiRepo struct {
	FullName string `json:"full_name"`
}

type apiBranch struct {
	Ref  string   `json:"ref"`
	Repo *apiRepo `json:"repo"`
}

type apiPull struct {
	Number  int       `json:"number"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	HTMLURL string    `json:"html_url"`
	Base    apiBranch `json:"base"`
	Head    apiBranch `json:"head"`
}

type apiRelease struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TagName    string `json:"tag_name"`
	Body       string `json:"body"`
	Prerelease bool   `json:"prerelease"`
	HTMLURL    string `json:"html_url"`
}

func (p apiPull) proposal() Proposal {
	out := Proposal{
		Number:  p.Number,
		Title:   p.Title,
		Body:    p.Body,
		HTMLURL: p.HTMLURL,
		Base:    p.Base.Ref,
		Head:    p.Head.Ref,
	}
	if p.Base.Repo != nil {
		out.BaseRepo = p.Base.Repo.FullName
	}
	if p.Head.Repo != nil {
		out.HeadRepo = p.Head.Repo.FullName
	}
	return out
}

func (r apiRelease) release() Release {
	return Release{ID: r.ID, Name: r.Name, TagName: r.TagName, Body: r.Body, Prerelease: r.Prerelease, HTMLURL: r.HTMLURL}
}

func (a *Alternate) repoPath(suffix string) string {
	return "/repos/" + url.PathEscape(a.owner) + "/" + url.PathEscape(a.repo) + suffix
}

// do sends one JSON request. Non-2xx responses become fault.KindAPI errors
// with the status code, status text, and request URL.
func (a *Alternate) do(ctx context.Context, op, method, path string, query url.Values, in, out any) (err error) {
	defer func() { a.metrics.APIRequest(string(KindAlternate), op, err) }()

	u := a.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fault.API(op, 0, "", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var cause error
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			cause = errors.New(msg)
		}
		return fault.API(op, resp.StatusCode, http.StatusText(resp.StatusCode), u, cause)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response from %s: %w", op, u, err)
	}
	return nil
}

// listAll follows pages until a short page, a page that repeats the
// previous one, or the MaxPages cap.
func listAll[T any](ctx context.Context, a *Alternate, op, path string, query url.Values) ([]T, error) {
	pageSize := a.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPages := a.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var (
		all       []T
		prevFirst json.RawMessage
	)
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(pageSize))
		q.Set("limit", strconv.Itoa(pageSize))

		var raw []json.RawMessage
		if err := a.do(ctx, op, http.MethodGet, path, q, nil, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 && bytes.Equal(raw[0], prevFirst) {
			a.logger.Debug("backend ignored the page parameter",
				slog.String("op", op),
				slog.Int("page", page))
			return all, nil
		}
		for _, item := range raw {
			var v T
			if err := json.Unmarshal(item, &v); err != nil {
				return nil, fmt.Errorf("%s: decoding page %d: %w", op, page, err)
			}
			all = append(all, v)
		}
		if len(raw) < pageSize {
			return all, nil
		}
		prevFirst = raw[0]
	}
	a.logger.Warn("listing truncated at page cap",
		slog.String("op", op),
		slog.Int("pages", maxPages),
		slog.Int("items", len(all)))
	return all, nil
}

// SearchOpenProposals lists every open pull request and keeps those whose
// base and head refs match exactly and whose both ends live in this
// repository. Proposals opened from forks never match.
func (a *Alternate) SearchOpenProposals(ctx context.Context, base, head string) ([]Proposal, error) {
	pulls, err := listAll[apiPull](ctx, a, "search proposals", a.repoPath("/pulls"), url.Values{"state": {"open"}})
	if err != nil {
		return nil, err
	}
	full := a.owner + "/" + a.repo
	var out []Proposal
	for _, p := range pulls {
		pr := p.proposal()
		if pr.Base != base || pr.Head != head {
			continue
		}
		if !strings.EqualFold(pr.BaseRepo, full) || !strings.EqualFold(pr.HeadRepo, full) {
			continue
		}
		out = append(out, pr)
	}
	return out, nil
}

// CreateProposal opens a pull request.
func (a *Alternate) CreateProposal(ctx context.Context, np NewProposal) (*Proposal, error) {
	in := map[string]string{"base": np.Base, "head": np.Head, "title": np.Title, "body": np.Body}
	var out apiPull
	if err := a.do(ctx, "create proposal", http.MethodPost, a.repoPath("/pulls"), nil, in, &out); err != nil {
		return nil, err
	}
	pr := out.proposal()
	return &pr, nil
}

// UpdateProposal replaces the title and body of an existing pull request.
func (a *Alternate) UpdateProposal(ctx context.Context, number int, title, body string) (*Proposal, error) {
	in := map[string]string{"title": title, "body": body}
	var out apiPull
	path := a.repoPath("/pulls/" + strconv.Itoa(number))
	if err := a.do(ctx, "update proposal", http.MethodPatch, path, nil, in, &out); err != nil {
		return nil, err
	}
	pr := out.proposal()
	return &pr, nil
}

// CanListReleases returns true.
func (a *Alternate) CanListReleases() bool { return true }

// ListReleases returns the repository's releases, bounded by the page cap.
func (a *Alternate) ListReleases(ctx context.Context) ([]Release, error) {
	rels, err := listAll[apiRelease](ctx, a, "list releases", a.repoPath("/releases"), nil)
	if err != nil {
		return nil, err
	}
	out := make([]Release, 0, len(rels))
	for _, r := range rels {
		out = append(out, r.release())
	}
	return out, nil
}

// CreateRelease creates a release record.
func (a *Alternate) CreateRelease(ctx context.Context, nr NewRelease) (*Release, error) {
	in := struct {
		Name       string `json:"name"`
		TagName    string `json:"tag_name"`
		Body       string `json:"body"`
		Prerelease bool   `json:"prerelease"`
	}{nr.Name, nr.TagName, nr.Body, nr.Prerelease}
	var out apiRelease
	if err := a.do(ctx, "create release", http.MethodPost, a.repoPath("/releases"), nil, in, &out); err != nil {
		return nil, err
	}
	rel := out.release()
	return &rel, nil
}
