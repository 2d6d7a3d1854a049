package invoker

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/usecase"
)

// Upstream forwards serialized requests to a remote server.
type Upstream interface {
	Invoke(ctx context.Context, fullMethod string, request []byte) ([]byte, error)
}

// Router implements usecase.Dispatcher. Locally registered handlers win;
// everything else goes to the upstream server when one is configured.
type Router struct {
	handlers usecase.HandlerRegistry
	upstream Upstream
	logger   *slog.Logger
}

// NewRouter creates a new invoker router. upstream may be nil.
func NewRouter(handlers usecase.HandlerRegistry, upstream Upstream, logger *slog.Logger) *Router {
	return &Router{
		handlers: handlers,
		upstream: upstream,
		logger:   logger.With("component", "invoker_router"),
	}
}

// Dispatch routes the request to the handler registered for the method.
func (r *Router) Dispatch(ctx context.Context, method domain.MethodSchema, request []byte) ([]byte, error) {
	log := r.logger.With(slog.String("method", method.Name))

	if r.handlers != nil {
		if h, ok := r.handlers.Lookup(method.Name); ok {
			log.Debug("Routing to local handler")
			return h(ctx, request)
		}
	}
	if r.upstream != nil {
		log.Debug("Routing to upstream", slog.String("full_method", method.FullName))
		return r.upstream.Invoke(ctx, method.FullName, request)
	}

	log.Warn("No handler for method")
	return nil, fmt.Errorf("%w: %s", domain.ErrMethodNotImplemented, method.Name)
}

// MessageHandler adapts a function working on decoded messages into a
// usecase.Handler for method.
func MessageHandler(method domain.MethodSchema, fn func(ctx context.Context, request *dynamicpb.Message) (proto.Message, error)) usecase.Handler {
	return func(ctx context.Context, request []byte) ([]byte, error) {
		msg := dynamicpb.NewMessage(method.Input)
		if err := proto.Unmarshal(request, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedRequest, method.Name, err)
		}
		resp, err := fn(ctx, msg)
		if err != nil {
			return nil, err
		}
		return proto.MarshalOptions{Deterministic: true}.Marshal(resp)
	}
}
