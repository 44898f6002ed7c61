// Package contents is a client for the repository contents API
// (GET and PUT /repos/{owner}/{repo}/contents/{path}) used to read and
// commit the sidekick configuration file.
package contents

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// DefaultUserAgent identifies the updater to the API.
const DefaultUserAgent = "sidekick-config-updater"

// Client talks to one contents API endpoint with one token.
type Client struct {
	http *resty.Client
}

// Option configures a Client.
type Option func(*resty.Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *resty.Client) {
		c.SetTransport(hc.Transport)
		c.SetTimeout(hc.Timeout)
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *resty.Client) { c.SetHeader("User-Agent", ua) }
}

// New creates a Client. An empty baseURL means DefaultBaseURL.
func New(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("User-Agent", DefaultUserAgent).
		SetAuthScheme("Bearer").
		SetAuthToken(token)
	for _, o := range opts {
		o(rc)
	}
	return &Client{http: rc}
}

// File is a decoded file and the version token needed to update it.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// PutRequest is the body of a file update. An empty SHA creates the file.
type PutRequest struct {
	Message string
	Content []byte
	SHA     string
	Branch  string
}

// PutResult carries the version tokens produced by a write.
type PutResult struct {
	SHA       string
	CommitSHA string
}

type getResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type putBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// FilePath builds /repos/{owner}/{repo}/contents/{path} with each path
// segment escaped and the separators kept.
func FilePath(owner, repo, path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(owner), url.PathEscape(repo), strings.Join(segs, "/"))
}

// Get reads a file. ref selects a branch, tag or commit; empty means the
// default branch.
func (c *Client) Get(ctx context.Context, owner, repo, path, ref string) (*File, error) {
	req := c.http.R().
		SetContext(ctx).
		SetResult(&getResponse{})
	if ref != "" {
		req.SetQueryParam("ref", ref)
	}
	resp, err := req.Get(FilePath(owner, repo, path))
	if err != nil {
		return nil, transportError(http.MethodGet, resp, err)
	}
	if resp.IsError() {
		return nil, statusError(http.MethodGet, resp)
	}

	body := resp.Result().(*getResponse)
	if body.Type != "" && body.Type != "file" {
		return nil, fmt.Errorf("contents: %s is a %s, not a file", path, body.Type)
	}
	if body.Encoding != "" && body.Encoding != "base64" {
		return nil, fmt.Errorf("contents: %s: unsupported encoding %q", path, body.Encoding)
	}
	// The API wraps base64 at 60 columns; the decoder skips the newlines.
	data, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		return nil, fmt.Errorf("contents: decode %s: %w", path, err)
	}
	return &File{Path: body.Path, SHA: body.SHA, Content: data}, nil
}

// Put creates or updates a file. A stale SHA yields *ConflictError.
func (c *Client) Put(ctx context.Context, owner, repo, path string, p PutRequest) (*PutResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(putBody{
			Message: p.Message,
			Content: base64.StdEncoding.EncodeToString(p.Content),
			SHA:     p.SHA,
			Branch:  p.Branch,
		}).
		SetResult(&putResponse{}).
		Put(FilePath(owner, repo, path))
	if err != nil {
		return nil, transportError(http.MethodPut, resp, err)
	}
	if resp.IsError() {
		terr := statusError(http.MethodPut, resp)
		if resp.StatusCode() == http.StatusConflict {
			return nil, &ConflictError{Path: path, SHA: p.SHA, Err: terr}
		}
		return nil, terr
	}

	out := resp.Result().(*putResponse)
	return &PutResult{SHA: out.Content.SHA, CommitSHA: out.Commit.SHA}, nil
}
