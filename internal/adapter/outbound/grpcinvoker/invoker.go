package grpcinvoker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/usecase"
)

// rawCodec passes already serialized messages through untouched. The request
// assembler produces wire bytes, so there is nothing left to marshal.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec: unexpected message type %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: unexpected message type %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

// Name keeps the "application/grpc+proto" content subtype on the wire.
func (rawCodec) Name() string { return "proto" }

// Invoker forwards serialized requests to an upstream gRPC server.
type Invoker struct {
	target      string
	logger      *slog.Logger
	dialOptions []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewInvoker creates a new gRPC invoker for target. The connection is opened
// on first use. Without options the connection is plaintext.
func NewInvoker(target string, logger *slog.Logger, opts ...grpc.DialOption) *Invoker {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &Invoker{
		target:      strings.TrimPrefix(target, "grpc://"),
		logger:      logger.With("component", "grpc_invoker"),
		dialOptions: opts,
	}
}

func (i *Invoker) connection() (*grpc.ClientConn, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn != nil {
		return i.conn, nil
	}
	conn, err := grpc.NewClient(i.target, i.dialOptions...)
	if err != nil {
		i.logger.Error("Failed to connect to gRPC server", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to gRPC server %s: %w", i.target, err)
	}
	i.conn = conn
	return conn, nil
}

// Invoke calls fullMethod ("/pkg.Service/Method") with a serialized request
// and returns the serialized response. Headers attached to ctx with
// usecase.WithForwardedHeaders are sent as metadata.
func (i *Invoker) Invoke(ctx context.Context, fullMethod string, request []byte) ([]byte, error) {
	log := i.logger.With(slog.String("method", fullMethod))
	conn, err := i.connection()
	if err != nil {
		return nil, err
	}

	if headers := usecase.ForwardedHeaders(ctx); len(headers) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, buildMetadata(headers))
	}

	var response []byte
	err = conn.Invoke(ctx, fullMethod, &request, &response, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		if st, ok := status.FromError(err); ok {
			log.Error("gRPC call failed",
				slog.String("code", st.Code().String()),
				slog.String("message", st.Message()),
			)
			if st.Code() == codes.Unimplemented {
				return nil, fmt.Errorf("%w: %s: %s", domain.ErrMethodNotImplemented, fullMethod, st.Message())
			}
			return nil, fmt.Errorf("gRPC call failed: %s - %s", st.Code(), st.Message())
		}
		log.Error("Failed to invoke RPC", slog.Any("error", err))
		return nil, fmt.Errorf("failed to invoke RPC: %w", err)
	}

	log.Debug("Invoked gRPC method", slog.Int("response_bytes", len(response)))
	return response, nil
}

// Close releases the upstream connection.
func (i *Invoker) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn == nil {
		return nil
	}
	err := i.conn.Close()
	i.conn = nil
	return err
}

// Helper function to build metadata from headers map
func buildMetadata(headers map[string]string) metadata.MD {
	md := metadata.New(nil)
	for k, v := range headers {
		md.Append(k, v)
	}
	return md
}
