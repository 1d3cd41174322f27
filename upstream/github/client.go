// Package github implements upstream.Store on the GitHub contents API and the
// GitHub OAuth device flow.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
)

const (
	defaultAPIURL   = "https://api.github.com"
	defaultOAuthURL = "https://github.com"
	apiVersion      = "2022-11-28"
	maxErrorBody    = 2048
)

var _ upstream.Store = (*Client)(nil)

// Options configures a Client. Empty URLs default to github.com.
type Options struct {
	APIURL     string
	OAuthURL   string
	Owner      string
	Repo       string
	Branch     string
	Path       string
	UserAgent  string
	HTTPClient *http.Client
}

type Client struct {
	httpClient *http.Client
	apiURL     string
	oauthURL   string
	owner      string
	repo       string
	branch     string
	path       string
}

func New(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "amq-songs-gateway"
	}
	client := *base
	client.Transport = &headerTransport{next: transport, userAgent: userAgent}

	c := &Client{
		httpClient: &client,
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		oauthURL:   strings.TrimRight(opts.OAuthURL, "/"),
		owner:      opts.Owner,
		repo:       opts.Repo,
		branch:     opts.Branch,
		path:       opts.Path,
	}
	if c.apiURL == "" {
		c.apiURL = defaultAPIURL
	}
	if c.oauthURL == "" {
		c.oauthURL = defaultOAuthURL
	}
	return c
}

// contentsURL is the contents API location of the dataset file.
func (c *Client) contentsURL() string {
	segments := strings.Split(strings.Trim(c.path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.apiURL, url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segments, "/"))
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetFile reads the dataset file. A conditional read answered with 304
// returns ErrNotModified.
func (c *Client) GetFile(ctx context.Context, req upstream.FileRequest) (*upstream.File, error) {
	u := c.contentsURL() + "?ref=" + url.QueryEscape(c.branch)
	httpReq, err := c.newAPIRequest(ctx, http.MethodGet, u, req.Token, nil)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[github GetFile]")
	}
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("[github GetFile] %w: %w", apperrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, apperrors.ErrNotModified
	}
	if err := checkStatus(resp); err != nil {
		return nil, apperrors.Wrapf(err, "[github GetFile]")
	}

	var body contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("[github GetFile] decoding envelope: %w: %w", apperrors.ErrUpstream, err)
	}
	content, err := decodeContent(body)
	if err != nil {
		return nil, fmt.Errorf("[github GetFile] %w: %w", apperrors.ErrUpstream, err)
	}

	return &upstream.File{
		Content: content,
		SHA:     body.SHA,
		ETag:    resp.Header.Get("ETag"),
	}, nil
}

func decodeContent(body contentsResponse) ([]byte, error) {
	if body.Encoding != "" && body.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q", body.Encoding)
	}
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(body.Content)
	content, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 content: %w", err)
	}
	return content, nil
}

type putBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// PutFile writes the dataset file over req.SHA. A stale SHA is answered with
// 409, surfaced as an UpstreamError matching ErrConflict.
func (c *Client) PutFile(ctx context.Context, req upstream.PutRequest) (*upstream.PutResult, error) {
	payload, err := json.Marshal(putBody{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString(req.Content),
		SHA:     req.SHA,
		Branch:  c.branch,
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[github PutFile]")
	}

	httpReq, err := c.newAPIRequest(ctx, http.MethodPut, c.contentsURL(), req.Token, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[github PutFile]")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("[github PutFile] %w: %w", apperrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, apperrors.Wrapf(err, "[github PutFile]")
	}

	var body putResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("[github PutFile] decoding response: %w: %w", apperrors.ErrUpstream, err)
	}
	return &upstream.PutResult{SHA: body.Content.SHA, CommitSHA: body.Commit.SHA}, nil
}

// GetUser returns the profile of the token's owner.
func (c *Client) GetUser(ctx context.Context, token string) (upstream.User, error) {
	var user upstream.User
	if err := c.getJSON(ctx, c.apiURL+"/user", token, &user); err != nil {
		return nil, apperrors.Wrapf(err, "[github GetUser]")
	}
	return user, nil
}

// GetRepoPermissions returns the token owner's access to the dataset
// repository.
func (c *Client) GetRepoPermissions(ctx context.Context, token string) (*upstream.RepoPermissions, error) {
	var repo struct {
		Permissions upstream.RepoPermissions `json:"permissions"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s", c.apiURL, url.PathEscape(c.owner), url.PathEscape(c.repo))
	if err := c.getJSON(ctx, u, token, &repo); err != nil {
		return nil, apperrors.Wrapf(err, "[github GetRepoPermissions]")
	}
	return &repo.Permissions, nil
}

func (c *Client) getJSON(ctx context.Context, u, token string, out any) error {
	req, err := c.newAPIRequest(ctx, http.MethodGet, u, token, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w: %w", u, apperrors.ErrUpstream, err)
	}
	return nil
}

func (c *Client) newAPIRequest(ctx context.Context, method, u, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// checkStatus turns a non-2xx response into an UpstreamError carrying the
// (truncated) body for diagnostics.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &apperrors.UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// headerTransport stamps the User-Agent GitHub requires and asks the OAuth
// endpoints for JSON rather than form-encoded answers.
type headerTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return t.next.RoundTrip(req)
}
