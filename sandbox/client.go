/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the sandbox provisioning API endpoint.
const DefaultBaseURL = "https://api.vercel.com"

// Client provisions sandboxes through the sandbox REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	teamID  string
}

var _ Provider = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithBaseURL overrides the API endpoint.
func WithBaseURL(raw string) ClientOption {
	return func(c *Client) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing base url: %w", err)
		}
		c.baseURL = u
		return nil
	}
}

// WithTeamID scopes every request to the given team.
func WithTeamID(teamID string) ClientOption {
	return func(c *Client) error {
		c.teamID = teamID
		return nil
	}
}

// NewClient returns a Client authenticating with tokens from ts. The
// underlying transport is taken from ctx (see oauth2.HTTPClient).
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...ClientOption) (*Client, error) {
	if ts == nil {
		return nil, errors.New("token source cannot be nil")
	}
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL: base,
		http:    oauth2.NewClient(ctx, ts),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// APIError is a non-2xx response from the sandbox API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sandbox api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("sandbox api returned %d: %s", e.StatusCode, e.Message)
}

type createRequest struct {
	Source    createSource `json:"source"`
	Resources Resources    `json:"resources"`
	Timeout   int64        `json:"timeout"`
	Ports     []int        `json:"ports,omitempty"`
	Runtime   string       `json:"runtime,omitempty"`
}

type createSource struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Revision string `json:"revision,omitempty"`
}

type sandboxResponse struct {
	Sandbox struct {
		ID      string `json:"id"`
		Status  Status `json:"status"`
		VCPUs   int    `json:"vcpus"`
		Runtime string `json:"runtime"`
		Timeout int64  `json:"timeout"`
		Cwd     string `json:"cwd"`
	} `json:"sandbox"`
	Routes []Route `json:"routes"`
}

type commandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd,omitempty"`
}

type commandResponse struct {
	Command struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ExitCode *int   `json:"exitCode"`
	} `json:"command"`
}

type logLine struct {
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

// Create provisions a sandbox seeded from opts.Source and waits for the
// provider to acknowledge it.
func (c *Client) Create(ctx context.Context, opts CreateOptions) (Sandbox, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	req := createRequest{
		Source:    createSource{Type: "git", URL: opts.Source.URL, Revision: opts.Source.Revision},
		Resources: opts.Resources,
		Timeout:   opts.Timeout.Milliseconds(),
		Ports:     opts.Ports,
		Runtime:   opts.Runtime,
	}

	var resp sandboxResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sandboxes", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	h := Handle{
		ID:        resp.Sandbox.ID,
		Status:    resp.Sandbox.Status,
		Routes:    resp.Routes,
		Resources: Resources{VCPUs: resp.Sandbox.VCPUs},
		Timeout:   time.Duration(resp.Sandbox.Timeout) * time.Millisecond,
		Ports:     opts.Ports,
		Runtime:   resp.Sandbox.Runtime,
		WorkDir:   resp.Sandbox.Cwd,
	}
	clog.FromContext(ctx).With("sandbox", h.ID).With("endpoint", h.Endpoint()).Info("Sandbox created")

	return &remoteSandbox{client: c, handle: h}, nil
}

func (c *Client) do(ctx context.Context, method, p string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.send(ctx, method, p, query, reader, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, p string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.baseURL.JoinPath(p)
	if query == nil {
		query = url.Values{}
	}
	if c.teamID != "" {
		query.Set("teamId", c.teamID)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		if json.Unmarshal(data, &payload) == nil && payload.Error.Message != "" {
			apiErr.Code = payload.Error.Code
			apiErr.Message = payload.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
	}
	return nil, apiErr
}

// remoteSandbox is a Sandbox backed by the REST API.
type remoteSandbox struct {
	client *Client
	handle Handle
}

func (s *remoteSandbox) Handle() Handle { return s.handle }

func (s *remoteSandbox) RunCommand(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	if args == nil {
		args = []string{}
	}
	base := path.Join("/v1/sandboxes", s.handle.ID, "cmd")

	var started commandResponse
	if err := s.client.do(ctx, http.MethodPost, base, nil, commandRequest{Command: name, Args: args, Cwd: s.handle.WorkDir}, &started); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	cmdPath := path.Join(base, started.Command.ID)

	var finished commandResponse
	if err := s.client.do(ctx, http.MethodGet, cmdPath, url.Values{"wait": []string{"true"}}, nil, &finished); err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", name, err)
	}
	if finished.Command.ExitCode == nil {
		return nil, fmt.Errorf("command %s finished without an exit code", name)
	}

	res := &CommandResult{ExitCode: *finished.Command.ExitCode}
	if err := s.collectLogs(ctx, path.Join(cmdPath, "logs"), res); err != nil {
		return nil, fmt.Errorf("reading output of %s: %w", name, err)
	}
	return res, CheckExit(name, args, res)
}

// collectLogs reads the newline-delimited log stream of a finished command.
func (s *remoteSandbox) collectLogs(ctx context.Context, p string, res *CommandResult) error {
	resp, err := s.client.send(ctx, http.MethodGet, p, nil, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var stdout, stderr strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var line logLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return fmt.Errorf("decoding log line: %w", err)
		}
		switch line.Stream {
		case "stderr":
			stderr.WriteString(line.Data)
		default:
			stdout.WriteString(line.Data)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return nil
}

func (s *remoteSandbox) WriteFiles(ctx context.Context, files ...File) error {
	body, err := tarball(files)
	if err != nil {
		return fmt.Errorf("packing files: %w", err)
	}
	p := path.Join("/v1/sandboxes", s.handle.ID, "fs", "write")
	resp, err := s.client.send(ctx, http.MethodPost, p, nil, body, "application/gzip")
	if err != nil {
		return fmt.Errorf("writing files: %w", err)
	}
	return resp.Body.Close()
}

func (s *remoteSandbox) Stop(ctx context.Context) error {
	p := path.Join("/v1/sandboxes", s.handle.ID, "stop")
	if err := s.client.do(ctx, http.MethodPost, p, nil, nil, nil); err != nil {
		return fmt.Errorf("stopping sandbox: %w", err)
	}
	s.handle.Status = StatusStopped
	return nil
}

// tarball packs files into a gzipped tar stream, the upload format of the
// filesystem write endpoint.
func tarball(files []File) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		if f.Path == "" {
			return nil, errors.New("file path cannot be empty")
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:    f.Path,
			Mode:    mode,
			Size:    int64(len(f.Content)),
			ModTime: time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
