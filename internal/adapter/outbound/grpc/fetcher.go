package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
)

// reflectionServices are never bridged.
var reflectionServices = map[string]bool{
	"grpc.reflection.v1.ServerReflection":      true,
	"grpc.reflection.v1alpha.ServerReflection": true,
}

// ReflectionSource implements usecase.SchemaSource by asking a running server
// for its descriptors through gRPC server reflection.
type ReflectionSource struct {
	target string
	// Default dialing options can be customized.
	dialOpts []grpc.DialOption
	headers  map[string]string
	logger   *slog.Logger
}

// NewReflectionSource creates a source for the server at target.
func NewReflectionSource(target string, logger *slog.Logger, opts ...grpc.DialOption) *ReflectionSource {
	// Default to insecure for local testing/dev; production needs credentials.
	defaultOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	return &ReflectionSource{
		target:   strings.TrimPrefix(target, "grpc://"),
		dialOpts: append(defaultOpts, opts...),
		logger:   logger.With("component", "grpc_fetcher"),
	}
}

// WithHeaders sets metadata sent with the reflection calls.
func (f *ReflectionSource) WithHeaders(headers map[string]string) *ReflectionSource {
	f.headers = headers
	return f
}

// Service resolves the named service through reflection. An empty name selects
// the only service the server exposes besides reflection itself.
func (f *ReflectionSource) Service(ctx context.Context, name string) (domain.ServiceSchema, error) {
	log := f.logger.With(slog.String("target", f.target), slog.String("service", name))
	log.Info("Fetching gRPC schema via reflection")

	conn, err := grpc.NewClient(f.target, f.dialOpts...)
	if err != nil {
		log.Error("Failed to connect to gRPC target", slog.Any("error", err))
		return domain.ServiceSchema{}, fmt.Errorf("failed to connect to gRPC target %s: %w", f.target, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if len(f.headers) > 0 {
		md := metadata.New(nil)
		for k, v := range f.headers {
			md.Append(k, v)
		}
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	refClient := grpcreflect.NewClientAuto(ctx, conn)
	defer refClient.Reset()
	source := grpcurl.DescriptorSourceFromServer(ctx, refClient)

	if name == "" {
		name, err = f.onlyService(source)
		if err != nil {
			return domain.ServiceSchema{}, err
		}
	}

	sym, err := source.FindSymbol(name)
	if err != nil {
		log.Error("Failed to resolve service", slog.Any("error", err))
		return domain.ServiceSchema{}, fmt.Errorf("failed to resolve service %s on %s: %w", name, f.target, err)
	}
	sd, ok := sym.(*desc.ServiceDescriptor)
	if !ok {
		return domain.ServiceSchema{}, fmt.Errorf("symbol %s on %s is not a service", name, f.target)
	}

	service := schema.ServiceFromDescriptor(sd.UnwrapService())
	log.Info("Successfully fetched gRPC service", slog.Int("method_count", len(service.Methods)))
	return service, nil
}

func (f *ReflectionSource) onlyService(source grpcurl.DescriptorSource) (string, error) {
	all, err := grpcurl.ListServices(source)
	if err != nil {
		return "", fmt.Errorf("failed to list services of %s: %w", f.target, err)
	}
	var services []string
	for _, s := range all {
		if !reflectionServices[s] {
			services = append(services, s)
		}
	}
	if len(services) != 1 {
		return "", fmt.Errorf("%s exposes %d services, pick one of: %s", f.target, len(services), strings.Join(services, ", "))
	}
	return services[0], nil
}
