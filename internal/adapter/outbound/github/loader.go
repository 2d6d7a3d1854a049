package github

import (
	"context"
	"fmt"
	"os"
)

// ReadFile returns the contents of path, which is either a github:// URL or
// a local file name.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	return readFile(ctx, NewGHClient(), path)
}

func readFile(ctx context.Context, client *GHClient, path string) ([]byte, error) {
	if IsGitHubURL(path) {
		content, err := client.FetchFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s from GitHub: %w", path, err)
		}
		return content, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}
