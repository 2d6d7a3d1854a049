// Package github reads files addressed as github://owner/repo/path[@ref]
// through the gh CLI.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strings"
)

const scheme = "github://"

// fileRef is a parsed github:// URL.
type fileRef struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

// apiPath is the contents API path of the file.
func (r fileRef) apiPath() string {
	p := fmt.Sprintf("repos/%s/%s/contents/%s", r.Owner, r.Repo, r.Path)
	if r.Ref != "" {
		p += "?ref=" + r.Ref
	}
	return p
}

// runFunc runs gh with args and returns its standard output.
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

// GHClient wraps the gh CLI command for GitHub operations
type GHClient struct {
	run runFunc
}

// NewGHClient creates a new GitHub client
func NewGHClient() *GHClient {
	return &GHClient{run: runGH}
}

func runGH(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		switch {
		case strings.Contains(err.Error(), "executable file not found"):
			return nil, fmt.Errorf("gh CLI is not installed. Please install it from https://cli.github.com/")
		case strings.Contains(msg, "not logged in"):
			return nil, fmt.Errorf("gh CLI is not authenticated. Please run 'gh auth login' first")
		case msg != "":
			return nil, fmt.Errorf("gh command failed: %s", strings.TrimSpace(msg))
		}
		return nil, fmt.Errorf("gh command failed: %w", err)
	}
	return stdout.Bytes(), nil
}

// parseGitHubURL parses a github:// URL into its components
// Format: github://owner/repo/path/to/file[@ref]
func parseGitHubURL(githubURL string) (fileRef, error) {
	if !IsGitHubURL(githubURL) {
		return fileRef{}, fmt.Errorf("invalid GitHub URL format: %s", githubURL)
	}
	urlPath := strings.TrimPrefix(githubURL, scheme)

	var ref fileRef
	if at := strings.LastIndex(urlPath, "@"); at >= 0 {
		urlPath, ref.Ref = urlPath[:at], urlPath[at+1:]
	}

	parts := strings.SplitN(urlPath, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return fileRef{}, fmt.Errorf("invalid GitHub URL format: expected github://owner/repo/path/to/file")
	}
	ref.Owner, ref.Repo, ref.Path = parts[0], parts[1], parts[2]
	return ref, nil
}

// FetchFile retrieves a file from GitHub using the gh CLI
func (c *GHClient) FetchFile(ctx context.Context, githubURL string) ([]byte, error) {
	ref, err := parseGitHubURL(githubURL)
	if err != nil {
		return nil, err
	}

	out, err := c.run(ctx, "api", ref.apiPath(), "--jq", ".content")
	if err != nil {
		return nil, err
	}

	// The contents API wraps base64 at 60 columns.
	encoded := strings.Join(strings.Fields(string(out)), "")
	if encoded == "" {
		return nil, fmt.Errorf("empty response from GitHub")
	}
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return content, nil
}

// IsGitHubURL checks if a URL is a GitHub URL
func IsGitHubURL(url string) bool {
	return strings.HasPrefix(url, scheme)
}
