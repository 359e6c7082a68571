// Package platform talks to the source-control hosting platform (GitHub's
// REST API): pull-request state lookups for the evidence gatherer, and
// issue-based notifications for the circuit breaker and stuck detector.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/okral/overseer/internal/config"
	"github.com/okral/overseer/internal/evidence"
)

// Client is a minimal GitHub REST client scoped to one repository.
type Client struct {
	owner  string
	repo   string
	token  string
	base   string
	client *http.Client
}

// New creates a client from the platform config. The token comes from
// the configured environment variable (default GITHUB_TOKEN).
func New(cfg config.Platform) *Client {
	tokenEnv := cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "GITHUB_TOKEN"
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	return &Client{
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		token:  os.Getenv(tokenEnv),
		base:   base,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// PullRequestState returns the platform's view of a pull request by
// number reference.
func (c *Client) PullRequestState(ctx context.Context, ref string) (evidence.PRState, error) {
	num, err := strconv.Atoi(ref)
	if err != nil {
		return evidence.PRUnknown, fmt.Errorf("bad pull request reference %q: %w", ref, err)
	}

	var pr struct {
		State  string `json:"state"`
		Merged bool   `json:"merged"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", c.owner, c.repo, num)
	if err := c.do(ctx, http.MethodGet, path, nil, &pr); err != nil {
		return evidence.PRUnknown, err
	}
	return prState(pr.State, pr.Merged), nil
}

// FindPullRequestByBranch searches for a pull request whose head is the
// given branch. Returns PRNone when the branch has no pull request.
func (c *Client) FindPullRequestByBranch(ctx context.Context, branch string) (string, evidence.PRState, error) {
	var prs []struct {
		Number   int    `json:"number"`
		State    string `json:"state"`
		MergedAt string `json:"merged_at"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=all&head=%s",
		c.owner, c.repo, url.QueryEscape(c.owner+":"+branch))
	if err := c.do(ctx, http.MethodGet, path, nil, &prs); err != nil {
		return "", evidence.PRUnknown, err
	}
	if len(prs) == 0 {
		return "", evidence.PRNone, nil
	}
	first := prs[0]
	return strconv.Itoa(first.Number), prState(first.State, first.MergedAt != ""), nil
}

func prState(state string, merged bool) evidence.PRState {
	switch {
	case merged:
		return evidence.PRMerged
	case state == "open":
		return evidence.PROpen
	case state == "closed":
		return evidence.PRClosed
	default:
		return evidence.PRUnknown
	}
}

// ReviewRequested reports whether the pull request has reviews asking
// for changes (used to advance PRReview -> ReviewTriage).
func (c *Client) ReviewRequested(ctx context.Context, ref string) (bool, error) {
	num, err := strconv.Atoi(ref)
	if err != nil {
		return false, fmt.Errorf("bad pull request reference %q: %w", ref, err)
	}
	var reviews []struct {
		State string `json:"state"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", c.owner, c.repo, num)
	if err := c.do(ctx, http.MethodGet, path, nil, &reviews); err != nil {
		return false, err
	}
	for _, r := range reviews {
		if r.State == "CHANGES_REQUESTED" {
			return true, nil
		}
	}
	return false, nil
}

// --- Issue-based notifications ---

// FindOpenIssue returns the number of an open issue with the exact title
// and label, or 0 if none exists.
func (c *Client) FindOpenIssue(ctx context.Context, title, label string) (int, error) {
	var issues []struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
	}
	path := fmt.Sprintf("/repos/%s/%s/issues?state=open&labels=%s",
		c.owner, c.repo, url.QueryEscape(label))
	if err := c.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return 0, err
	}
	for _, is := range issues {
		if is.Title == title {
			return is.Number, nil
		}
	}
	return 0, nil
}

// CreateIssue opens an issue and returns its number.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (int, error) {
	req := map[string]any{"title": title, "body": body, "labels": labels}
	var issue struct {
		Number int `json:"number"`
	}
	path := fmt.Sprintf("/repos/%s/%s/issues", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, path, req, &issue); err != nil {
		return 0, err
	}
	return issue.Number, nil
}

// CommentIssue adds a comment to an issue.
func (c *Client) CommentIssue(ctx context.Context, number int, body string) error {
	req := map[string]any{"body": body}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, c.repo, number)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// CloseIssue closes an issue.
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	req := map[string]any{"state": "closed"}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	return c.do(ctx, http.MethodPatch, path, req, nil)
}

// do sends one API request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("platform call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("platform returned status %d: %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
