/*
Copyright 2026 The Forge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sourceforge defines the pipeline's read-mostly collaborator
// interface: listing pull requests and check runs, downloading a failed
// job's log and change-set diff, and posting the pipeline's outcome back as
// a PR comment or job summary. Collaborator is the thing a CI bot needs to
// pull a diagnose.go invocation's inputs from and push its outputs to; it is
// not a general source-forge SDK.
package sourceforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
)

// PullRequest is the subset of a PR's metadata the pipeline needs to pick a
// change-set and target root.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HeadSHA string `json:"headSha"`
	BaseRef string `json:"baseRef"`
}

// CheckRun is a single CI job attached to a PR's head commit.
type CheckRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	LogURL     string `json:"logUrl"`
}

// Collaborator is the read-mostly surface a pipeline invocation uses to
// gather its inputs and report its outcome. Implementations must be safe
// for concurrent use.
type Collaborator interface {
	ListPullRequests(ctx context.Context, repo string) ([]PullRequest, error)
	ListCheckRuns(ctx context.Context, repo, ref string) ([]CheckRun, error)
	DownloadJobLog(ctx context.Context, repo string, checkRunID int64) (string, error)
	FetchChangeSet(ctx context.Context, repo string, prNumber int) (string, error)
	PostComment(ctx context.Context, repo string, prNumber int, body string) error
	AppendJobSummary(ctx context.Context, repo string, checkRunID int64, body string) error
}

// Config configures the thin HTTP client. Token is used directly as a
// bearer token when set; otherwise ClientID/ClientSecret/TokenURL drive an
// OAuth2 client-credentials exchange.
type Config struct {
	BaseURL      string
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// Client is a thin REST client over Config.BaseURL, authenticated via
// golang.org/x/oauth2. It does not attempt to model a full source-forge
// API surface — only the six Collaborator operations.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client from cfg. A ClientID/ClientSecret/TokenURL triple
// takes priority over a bare Token, since client-credentials tokens refresh
// themselves.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, forgeerrors.New(forgeerrors.ErrorTypeInputInvalid, "sourceforge: BaseURL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	var httpClient *http.Client
	switch {
	case cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TokenURL != "":
		ccCfg := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		httpClient = ccCfg.Client(ctx)
	case cfg.Token != "":
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(ctx, src)
	default:
		return nil, forgeerrors.New(forgeerrors.ErrorTypeInputInvalid, "sourceforge: either Token or ClientID/ClientSecret/TokenURL is required")
	}
	httpClient.Timeout = timeout

	return &Client{baseURL: cfg.BaseURL, http: httpClient}, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrorTypeInternal, "sourceforge: building request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "sourceforge: request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrorTypeInternal, "sourceforge: reading response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, forgeerrors.New(forgeerrors.ErrorTypeBackendUnavailable, fmt.Sprintf("sourceforge: %s returned %d: %s", path, resp.StatusCode, string(body)))
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return forgeerrors.Wrap(forgeerrors.ErrorTypeInternal, "sourceforge: encoding request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return forgeerrors.Wrap(forgeerrors.ErrorTypeInternal, "sourceforge: building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return forgeerrors.Wrap(forgeerrors.ErrorTypeBackendUnavailable, "sourceforge: request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return forgeerrors.New(forgeerrors.ErrorTypeBackendUnavailable, fmt.Sprintf("sourceforge: %s returned %d: %s", path, resp.StatusCode, string(body)))
	}
	return nil
}

func (c *Client) ListPullRequests(ctx context.Context, repo string) ([]PullRequest, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/pulls", repo))
	if err != nil {
		return nil, err
	}
	var prs []PullRequest
	if err := json.Unmarshal(body, &prs); err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrorTypeInternal, "sourceforge: decoding pull requests", err)
	}
	return prs, nil
}

func (c *Client) ListCheckRuns(ctx context.Context, repo, ref string) ([]CheckRun, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/commits/%s/check-runs", repo, ref))
	if err != nil {
		return nil, err
	}
	var runs []CheckRun
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrorTypeInternal, "sourceforge: decoding check runs", err)
	}
	return runs, nil
}

func (c *Client) DownloadJobLog(ctx context.Context, repo string, checkRunID int64) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/check-runs/%d/log", repo, checkRunID))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) FetchChangeSet(ctx context.Context, repo string, prNumber int) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/pulls/%d.diff", repo, prNumber))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) PostComment(ctx context.Context, repo string, prNumber int, body string) error {
	return c.post(ctx, fmt.Sprintf("/repos/%s/issues/%d/comments", repo, prNumber), map[string]string{"body": body})
}

func (c *Client) AppendJobSummary(ctx context.Context, repo string, checkRunID int64, body string) error {
	return c.post(ctx, fmt.Sprintf("/repos/%s/check-runs/%d/summary", repo, checkRunID), map[string]string{"summary": body})
}

var _ Collaborator = (*Client)(nil)
