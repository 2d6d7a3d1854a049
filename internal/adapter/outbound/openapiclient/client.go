// Package openapiclient calls the HTTP operations of a protoswag document,
// spreading request messages over query, path, header and body parameters the
// way the serving side reads them back.
package openapiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/i2y/protoswag/internal/codec"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
)

const maxErrorBody = 4096

// StatusError is returned for responses other than 200 OK.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP status %d: %s", e.StatusCode, e.Message)
}

// Is maps 404 and 501 onto the matching domain errors.
func (e *StatusError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == domain.ErrMethodNotFound
	case http.StatusNotImplemented:
		return target == domain.ErrMethodNotImplemented
	}
	return false
}

// Client calls methods through their HTTP operations.
type Client struct {
	baseURL    string
	plans      map[string]domain.MethodPlan
	reflector  *schema.Reflector
	httpClient *http.Client
	headers    map[string]string
	logger     *slog.Logger
}

// New creates a Client for plans served below baseURL. A nil httpClient
// means http.DefaultClient.
func New(baseURL string, plans []domain.MethodPlan, reflector *schema.Reflector, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	byName := make(map[string]domain.MethodPlan, len(plans))
	for _, p := range plans {
		byName[p.Method] = p.Clone()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		plans:      byName,
		reflector:  reflector,
		httpClient: httpClient,
		logger:     logger.With("component", "openapi_client"),
	}
}

// WithHeaders sets headers sent with every call, e.g. authorization.
func (c *Client) WithHeaders(headers map[string]string) *Client {
	c.headers = headers
	return c
}

// ServerURL returns the first absolute http(s) server URL of doc, or "".
func ServerURL(doc *openapi3.T) string {
	for _, s := range doc.Servers {
		if s == nil {
			continue
		}
		if u, err := url.Parse(s.URL); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			return s.URL
		}
	}
	return ""
}

// Call sends request to the operation of method and returns the serialized
// response message.
func (c *Client) Call(ctx context.Context, method string, request proto.Message) ([]byte, error) {
	plan, ok := c.plans[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMethodNotFound, method)
	}
	log := c.logger.With(slog.String("method", method))

	enc, err := c.encode(plan, request.ProtoReflect())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	target := c.baseURL + enc.path
	if len(enc.query) > 0 {
		target += "?" + enc.query.Encode()
	}
	var body io.Reader
	if enc.body != nil {
		body = bytes.NewReader(enc.body)
	}
	req, err := http.NewRequestWithContext(ctx, plan.HTTPMethod, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range enc.header {
		req.Header.Set(k, v)
	}
	if enc.body != nil {
		req.Header.Set("Content-Type", domain.ContentType)
	}

	log.Debug("Calling operation", slog.String("http_method", plan.HTTPMethod), slog.String("url", target))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("HTTP request failed", slog.Any("error", err))
		return nil, fmt.Errorf("request execution failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("Received non-success status code", slog.Int("status_code", resp.StatusCode))
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return out, nil
}

// encoded is one request spread over the parts of an HTTP request.
type encoded struct {
	path   string
	query  url.Values
	header map[string]string
	body   []byte
}

func (c *Client) encode(plan domain.MethodPlan, msg protoreflect.Message) (*encoded, error) {
	enc := &encoded{path: plan.Path, query: url.Values{}, header: map[string]string{}}
	for _, p := range plan.Params {
		if p.IsWholeRequest() {
			b, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg.Interface())
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			if p.In == domain.LocationBody {
				enc.body = b
				continue
			}
			if err := enc.place(p, []string{codec.EncodeBytes(b, p.Format)}, false); err != nil {
				return nil, err
			}
			continue
		}

		fd, ok := c.reflector.FindField(msg.Descriptor(), p.Field)
		if !ok {
			return nil, fmt.Errorf("%w: could not find field %q in %s", domain.ErrInternal, p.Field, msg.Descriptor().FullName())
		}
		values, err := fieldValues(msg, fd, p.Format)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		if err := enc.place(p, values, fd.Kind == domain.KindArray); err != nil {
			return nil, err
		}
	}
	return enc, nil
}

// fieldValues reads the value of fd out of msg. Unset parents read as empty
// messages, so their fields give default values.
func fieldValues(msg protoreflect.Message, fd domain.FieldDescriptor, format domain.ParamFormat) ([]string, error) {
	target := msg
	for _, parent := range fd.Chain[:len(fd.Chain)-1] {
		target = target.Get(parent).Message()
	}
	leaf := fd.Proto()
	if !leaf.IsList() {
		v, err := codec.EncodeScalar(target.Get(leaf), format, leaf)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	}
	list := target.Get(leaf).List()
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		v, err := codec.EncodeScalar(list.Get(i), format, leaf)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// place writes values into the location of p following its style and
// explode settings. Empty lists are left out.
func (e *encoded) place(p domain.ParamSpec, values []string, list bool) error {
	if list && len(values) == 0 {
		return nil
	}
	switch p.In {
	case domain.LocationQuery:
		if list && !p.EffectiveExplode() {
			e.query.Set(p.Name, strings.Join(values, ","))
			return nil
		}
		for _, v := range values {
			e.query.Add(p.Name, v)
		}
	case domain.LocationHeader:
		e.header[p.Name] = strings.Join(values, ",")
	case domain.LocationPath:
		placeholder := "{" + p.Name + "}"
		if !strings.Contains(e.path, placeholder) {
			return fmt.Errorf("%w: path %s has no placeholder for %s", domain.ErrInternal, e.path, p.Name)
		}
		e.path = strings.Replace(e.path, placeholder, url.PathEscape(pathValue(p, values)), 1)
	default:
		return errors.New("field parameters cannot travel in " + string(p.In))
	}
	return nil
}

// pathValue serializes a path parameter in the simple, label or matrix style.
func pathValue(p domain.ParamSpec, values []string) string {
	explode := p.EffectiveExplode()
	switch p.EffectiveStyle() {
	case domain.StyleLabel:
		if explode {
			return "." + strings.Join(values, ".")
		}
		return "." + strings.Join(values, ",")
	case domain.StyleMatrix:
		prefix := ";" + p.Name + "="
		if explode {
			return prefix + strings.Join(values, prefix)
		}
		return prefix + strings.Join(values, ",")
	default:
		return strings.Join(values, ",")
	}
}
