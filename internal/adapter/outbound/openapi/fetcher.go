package openapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/protoswag/internal/adapter/outbound/github"
	"github.com/i2y/protoswag/internal/domain"
)

// DocumentFetcher loads a previously generated OpenAPI document from a URL or
// a local file.
type DocumentFetcher struct {
	httpClient     *http.Client
	logger         *slog.Logger
	autoDiscoverer *AutoDiscoverer
}

// NewDocumentFetcher creates a DocumentFetcher.
func NewDocumentFetcher(client *http.Client, logger *slog.Logger) *DocumentFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &DocumentFetcher{
		httpClient:     client,
		logger:         logger.With("component", "openapi_fetcher"),
		autoDiscoverer: NewAutoDiscoverer(client, logger),
	}
}

// Fetch loads and validates the document at src. headers are sent with HTTP
// requests and ignored for files.
func (f *DocumentFetcher) Fetch(ctx context.Context, src string, headers map[string]string) (*openapi3.T, error) {
	log := f.logger.With(slog.String("source", src))
	log.Info("Fetching OpenAPI document")

	resolved := f.autoDiscoverer.Resolve(ctx, src, headers)
	if resolved != src {
		log.Info("Auto-discovered OpenAPI document", slog.String("resolved_url", resolved))
	}

	var (
		data []byte
		err  error
	)
	if u, parseErr := url.ParseRequestURI(resolved); parseErr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		log.Debug("Fetching from URL")
		data, err = f.download(ctx, resolved, headers)
	} else {
		log.Debug("Assuming local file path or github:// URL")
		data, err = github.ReadFile(ctx, resolved)
	}
	if err != nil {
		log.Error("Failed to fetch OpenAPI document", slog.Any("error", err))
		return nil, err
	}

	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		log.Error("Failed to parse OpenAPI document", slog.Any("error", err))
		return nil, fmt.Errorf("failed to parse OpenAPI document from %s: %w", src, err)
	}
	if err := doc.Validate(ctx); err != nil {
		log.Error("OpenAPI document validation failed", slog.Any("validation_error", err))
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidDocument, src, err)
	}

	log.Info("Successfully fetched and parsed OpenAPI document")
	return doc, nil
}

func (f *DocumentFetcher) download(ctx context.Context, src string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", src, err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document from URL %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch document from URL %s: status %s", src, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", src, err)
	}
	return data, nil
}
