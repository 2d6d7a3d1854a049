// Package connect forwards serialized requests to an upstream server speaking
// the Connect unary protocol over plain HTTP.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/usecase"
)

const (
	contentType     = "application/proto"
	protocolVersion = "1"
	// maxErrorBody bounds how much of a failed response ends up in the error.
	maxErrorBody = 4096
)

// Invoker posts binary requests to <baseURL>/<package.Service>/<Method>.
type Invoker struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewInvoker creates a new Connect invoker for baseURL. A nil client gets a
// client with a 30 second timeout.
func NewInvoker(baseURL string, httpClient *http.Client, logger *slog.Logger) *Invoker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	return &Invoker{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "connect_invoker"),
	}
}

// connectError is the JSON body of a failed unary call.
type connectError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Invoke sends request to fullMethod ("/package.Service/Method") and returns
// the serialized response.
func (i *Invoker) Invoke(ctx context.Context, fullMethod string, request []byte) ([]byte, error) {
	log := i.logger.With(slog.String("server", i.baseURL), slog.String("method", fullMethod))

	url := i.baseURL + "/" + strings.TrimPrefix(fullMethod, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Connect-Protocol-Version", protocolVersion)
	for k, v := range usecase.ForwardedHeaders(ctx) {
		req.Header.Set(k, v)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		log.Error("Failed to send request", slog.Any("error", err))
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var cerr connectError
		if json.Unmarshal(body, &cerr) == nil && cerr.Code != "" {
			log.Warn("Connect call failed", slog.String("code", cerr.Code), slog.String("message", cerr.Message))
			if cerr.Code == "unimplemented" {
				return nil, fmt.Errorf("%w: %s: %s", domain.ErrMethodNotImplemented, fullMethod, cerr.Message)
			}
			return nil, fmt.Errorf("Connect call failed: %s - %s", cerr.Code, cerr.Message)
		}
		log.Error("HTTP error", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	log.Debug("Connect call succeeded", slog.Int("bytes", len(out)))
	return out, nil
}
