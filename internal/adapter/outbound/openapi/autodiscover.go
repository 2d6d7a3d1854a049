package openapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Document paths tried on a base URL, in order. A running protoswag server
// publishes its document under the first two.
var documentPaths = []string{
	"/openapi.json",
	"/openapi.yaml",
	"/docs/openapi.json",
	"/v3/api-docs",
}

// AutoDiscoverer finds the OpenAPI document behind a base URL.
type AutoDiscoverer struct {
	client *http.Client
	logger *slog.Logger
}

// NewAutoDiscoverer creates an AutoDiscoverer.
func NewAutoDiscoverer(client *http.Client, logger *slog.Logger) *AutoDiscoverer {
	return &AutoDiscoverer{
		client: client,
		logger: logger.With("component", "openapi_autodiscoverer"),
	}
}

// Resolve returns source unchanged when it already names a document, and
// otherwise the first candidate document URL which answers with 200. When
// nothing answers the original source is returned.
func (d *AutoDiscoverer) Resolve(ctx context.Context, source string, headers map[string]string) string {
	log := d.logger.With(slog.String("source", source))

	lower := strings.ToLower(source)
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") ||
		strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return source
	}

	log.Info("Source appears to be a base URL, attempting auto-discovery")
	for _, path := range documentPaths {
		candidate := strings.TrimRight(source, "/") + path
		ok, err := d.answers(ctx, candidate, headers)
		if err != nil {
			log.Debug("Failed to check endpoint", slog.String("url", candidate), slog.Any("error", err))
			continue
		}
		if ok {
			log.Info("Found OpenAPI document", slog.String("url", candidate))
			return candidate
		}
	}
	log.Warn("Auto-discovery failed, using original source")
	return source
}

func (d *AutoDiscoverer) answers(ctx context.Context, candidate string, headers map[string]string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml, application/vnd.oai.openapi+json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
