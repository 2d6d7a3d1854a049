package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/i2y/protoswag/configs"
	"github.com/i2y/protoswag/internal/adapter/outbound/connect"
	grpcsource "github.com/i2y/protoswag/internal/adapter/outbound/grpc"
	"github.com/i2y/protoswag/internal/adapter/outbound/grpcinvoker"
	"github.com/i2y/protoswag/internal/adapter/outbound/invoker"
	"github.com/i2y/protoswag/internal/adapter/outbound/memrepo"
	"github.com/i2y/protoswag/internal/adapter/outbound/openapi"
	"github.com/i2y/protoswag/internal/adapter/outbound/proto"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/methodconfig"
	"github.com/i2y/protoswag/internal/schema"
	"github.com/i2y/protoswag/internal/usecase"
)

// registry bundles what registration produced for the serving side.
type registry struct {
	reflector  *schema.Reflector
	repository *memrepo.InMemoryPlanRepository
	reg        *usecase.Registration
}

func isHTTPURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// schemaSource reads the service from .proto files when any are configured,
// and from the upstream server's reflection service otherwise.
func schemaSource(cfg *configs.Config, httpClient *http.Client, logger *slog.Logger) (usecase.SchemaSource, error) {
	if len(cfg.ProtoFiles) > 0 {
		return proto.NewFileSource(cfg.ProtoFiles, cfg.ImportPaths, httpClient, logger).WithHeaders(cfg.SchemaHeaders), nil
	}
	if cfg.Upstream == "" {
		return nil, fmt.Errorf("no schema source: set proto files or an upstream gRPC server")
	}
	if isHTTPURL(cfg.Upstream) {
		return nil, fmt.Errorf("upstream %s speaks Connect over HTTP and has no reflection service; set proto files", cfg.Upstream)
	}
	return grpcsource.NewReflectionSource(cfg.Upstream, logger).WithHeaders(cfg.SchemaHeaders), nil
}

// register loads the service schema and resolves its plans, from tags or from
// a previously generated document, and stores the registration.
func register(ctx context.Context, cfg *configs.Config, logger *slog.Logger) (*registry, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	source, err := schemaSource(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	var base *openapi.BaseDocument
	var entries []domain.ConfigEntry
	if cfg.BaseDocument != "" {
		base, err = openapi.LoadBaseDocument(ctx, cfg.BaseDocument)
		if err != nil {
			return nil, err
		}
		entries = append(entries, base.Methods...)
	}
	entries = append(entries, cfg.MethodEntries()...)

	reflector := schema.NewReflector()
	repository := memrepo.NewInMemoryPlanRepository(logger)
	registerUC := usecase.NewRegisterServiceUseCase(
		source,
		methodconfig.NewResolver(reflector, logger),
		openapi.NewDocumentGenerator(reflector, base, logger),
		repository,
		logger,
	)

	var reg *usecase.Registration
	if cfg.Document != "" {
		doc, err := openapi.NewDocumentFetcher(httpClient, logger).Fetch(ctx, cfg.Document, cfg.SchemaHeaders)
		if err != nil {
			return nil, err
		}
		plans, err := openapi.PlansFromDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to read method plans from %s: %w", cfg.Document, err)
		}
		reg, err = registerUC.ExecuteWithPlans(ctx, cfg.Service, plans)
		if err != nil {
			return nil, err
		}
	} else {
		reg, err = registerUC.Execute(ctx, cfg.Service, entries)
		if err != nil {
			return nil, err
		}
	}
	return &registry{reflector: reflector, repository: repository, reg: reg}, nil
}

// upstream picks the dispatcher for methods without a local handler. The
// returned close function is never nil.
func upstream(cfg *configs.Config, logger *slog.Logger) (invoker.Upstream, func() error) {
	switch {
	case cfg.Upstream == "":
		return nil, func() error { return nil }
	case isHTTPURL(cfg.Upstream):
		return connect.NewInvoker(cfg.Upstream, &http.Client{Timeout: cfg.HTTPClientTimeout}, logger), func() error { return nil }
	default:
		inv := grpcinvoker.NewInvoker(cfg.Upstream, logger)
		return inv, inv.Close
	}
}
