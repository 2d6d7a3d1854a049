package proto

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
)

// FileSource implements usecase.SchemaSource for .proto files on disk or
// behind an HTTP URL.
type FileSource struct {
	patterns    []string
	importPaths []string
	headers     map[string]string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewFileSource creates a source for the files matching patterns. A pattern is
// a doublestar glob, resolved against every import path when any are given,
// or an http(s) URL of a single .proto file.
func NewFileSource(patterns, importPaths []string, httpClient *http.Client, logger *slog.Logger) *FileSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FileSource{
		patterns:    patterns,
		importPaths: importPaths,
		httpClient:  httpClient,
		logger:      logger.With("component", "proto_fetcher"),
	}
}

// WithHeaders sets headers sent along when fetching remote .proto files.
func (f *FileSource) WithHeaders(headers map[string]string) *FileSource {
	f.headers = headers
	return f
}

// Service parses the files and returns the named service. An empty name
// selects the only service defined in the files.
func (f *FileSource) Service(ctx context.Context, name string) (domain.ServiceSchema, error) {
	log := f.logger.With(slog.String("service", name))

	remote := map[string][]byte{}
	var names []string
	for _, pattern := range f.patterns {
		if strings.HasPrefix(pattern, "http://") || strings.HasPrefix(pattern, "https://") {
			data, err := f.fetch(ctx, pattern)
			if err != nil {
				return domain.ServiceSchema{}, err
			}
			file := path.Base(pattern)
			remote[file] = data
			names = append(names, file)
			continue
		}
		matches, err := f.expand(pattern)
		if err != nil {
			return domain.ServiceSchema{}, err
		}
		names = append(names, matches...)
	}
	names = dedupe(names)
	if len(names) == 0 {
		return domain.ServiceSchema{}, fmt.Errorf("no .proto files given")
	}

	parser := protoparse.Parser{
		ImportPaths:           f.importPaths,
		IncludeSourceCodeInfo: true,
		Accessor: func(filename string) (io.ReadCloser, error) {
			for file, data := range remote {
				if filename == file || strings.HasSuffix(filename, "/"+file) {
					return io.NopCloser(bytes.NewReader(data)), nil
				}
			}
			return os.Open(filename)
		},
	}
	files, err := parser.ParseFiles(names...)
	if err != nil {
		log.Error("Failed to parse .proto files", slog.Any("error", err))
		return domain.ServiceSchema{}, fmt.Errorf("failed to parse .proto files: %w", err)
	}
	log.Info("Parsed .proto files", slog.Int("count", len(files)))

	sd, err := findService(files, name)
	if err != nil {
		return domain.ServiceSchema{}, err
	}
	return schema.ServiceFromDescriptor(sd.UnwrapService()), nil
}

func (f *FileSource) expand(pattern string) ([]string, error) {
	if len(f.importPaths) == 0 {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no .proto files match %s", pattern)
		}
		return matches, nil
	}

	var names []string
	for _, dir := range f.importPaths {
		full := pattern
		if !filepath.IsAbs(pattern) {
			full = filepath.Join(dir, pattern)
		}
		matches, err := doublestar.FilepathGlob(full)
		if err != nil {
			return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(dir, m)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			names = append(names, filepath.ToSlash(rel))
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .proto files match %s in %s", pattern, strings.Join(f.importPaths, ", "))
	}
	return names, nil
}

func (f *FileSource) fetch(ctx context.Context, url string) ([]byte, error) {
	log := f.logger.With(slog.String("source", url))
	log.Info("Fetching .proto schema", slog.Int("header_count", len(f.headers)))

	if !strings.HasSuffix(url, ".proto") {
		return nil, fmt.Errorf("source must be a .proto file, got: %s", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Error("Failed to fetch .proto file", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch .proto file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error("HTTP request failed", slog.Int("status_code", resp.StatusCode))
		return nil, fmt.Errorf("HTTP request failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Info("Successfully fetched .proto file", slog.Int("size", len(data)))
	return data, nil
}

func findService(files []*desc.FileDescriptor, name string) (*desc.ServiceDescriptor, error) {
	if name != "" {
		for _, fd := range files {
			if sd := fd.FindService(name); sd != nil {
				return sd, nil
			}
		}
		return nil, fmt.Errorf("service %s not found", name)
	}

	var found []*desc.ServiceDescriptor
	for _, fd := range files {
		found = append(found, fd.GetServices()...)
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, fmt.Errorf("no service defined")
	default:
		var names []string
		for _, sd := range found {
			names = append(names, sd.GetFullyQualifiedName())
		}
		return nil, fmt.Errorf("several services defined, pick one of %s", strings.Join(names, ", "))
	}
}

func dedupe(names []string) []string {
	sort.Strings(names)
	out := names[:0]
	for i, n := range names {
		if i == 0 || n != names[i-1] {
			out = append(out, n)
		}
	}
	return out
}
