// Package resthttp serves registered methods as plain HTTP operations.
package resthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/klauspost/compress/gzhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/i2y/protoswag/internal/adapter/outbound/openapi"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
	"github.com/i2y/protoswag/internal/usecase"
)

// DefaultMaxRequestBodyBytes bounds request bodies when Options leave it unset.
const DefaultMaxRequestBodyBytes = 4 << 20

// Invoker runs one method call. *usecase.InvokeMethodUseCase implements it.
type Invoker interface {
	Execute(ctx context.Context, methodName string, values usecase.ParamSource) ([]byte, error)
}

// Options tune the HTTP surface.
type Options struct {
	MaxRequestBodyBytes int64
	// ForwardHeaders lists request headers passed on to the upstream server.
	ForwardHeaders []string
}

// Handlers struct holds dependencies for the HTTP handlers.
type Handlers struct {
	reg       *usecase.Registration
	invoker   Invoker
	reflector *schema.Reflector
	opts      Options
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(reg *usecase.Registration, invoker Invoker, reflector *schema.Reflector, opts Options, logger *slog.Logger) *Handlers {
	if opts.MaxRequestBodyBytes <= 0 {
		opts.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	return &Handlers{
		reg:       reg,
		invoker:   invoker,
		reflector: reflector,
		opts:      opts,
		logger:    logger.With("component", "resthttp_handler"),
	}
}

// Handler returns a compressing handler serving every route.
func (h *Handlers) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	if err := h.RegisterRoutes(mux); err != nil {
		return nil, err
	}
	return gzhttp.GzipHandler(mux), nil
}

// RegisterRoutes sets up one route per method plan plus the document and
// health endpoints.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) (err error) {
	defer func() {
		// ServeMux panics on conflicting patterns.
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to register routes: %v", r)
		}
	}()

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /openapi.json", h.handleDocument(openapi.MarshalJSON, "application/json"))
	mux.HandleFunc("GET /openapi.yaml", h.handleDocument(openapi.MarshalYAML, "application/yaml"))

	for _, plan := range h.reg.Plans {
		method, ok := h.reg.Service.Method(plan.Method)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrMethodNotFound, plan.Method)
		}
		rt := newRoute(plan, method, h.reflector)
		pattern := strings.ToUpper(plan.HTTPMethod) + " " + plan.Path
		mux.Handle(pattern, h.handleMethod(rt))
		h.logger.Debug("Registered route", slog.String("pattern", pattern), slog.String("method", plan.Method))
	}
	h.logger.Info("Registered routes", slog.Int("count", len(h.reg.Plans)))
	return nil
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": h.reg.Service.Name})
}

func (h *Handlers) handleDocument(encode func(*openapi3.T) ([]byte, error), contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.reg.Document == nil {
			http.Error(w, "no OpenAPI document", http.StatusNotFound)
			return
		}
		data, err := encode(h.reg.Document)
		if err != nil {
			h.logger.Error("Failed to encode OpenAPI document", slog.Any("error", err))
			http.Error(w, "failed to encode OpenAPI document", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

func (h *Handlers) handleMethod(rt *route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := h.logger.With(slog.String("method", rt.plan.Method))
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = usecase.WithForwardedHeaders(ctx, h.forwarded(r))

		values := &paramSource{route: rt, request: r, query: r.URL.Query()}
		if rt.hasBody {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxRequestBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
					return
				}
				log.Warn("Failed to read request body", slog.Any("error", err))
				http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
				return
			}
			values.body = body
		}

		out, err := h.invoker.Execute(ctx, rt.plan.Method, values)
		if err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				log.Error("Method call failed", slog.Int("status", status), slog.Any("error", err))
			} else {
				log.Info("Method call rejected", slog.Int("status", status), slog.Any("error", err))
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", domain.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func (h *Handlers) forwarded(r *http.Request) map[string]string {
	var headers map[string]string
	for _, name := range h.opts.ForwardHeaders {
		if v := r.Header.Get(name); v != "" {
			if headers == nil {
				headers = make(map[string]string, len(h.opts.ForwardHeaders))
			}
			headers[strings.ToLower(name)] = v
		}
	}
	return headers
}

// statusOf maps request errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case domain.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMethodNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMethodNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
