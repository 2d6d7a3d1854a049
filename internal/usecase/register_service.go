package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/i2y/protoswag/internal/domain"
)

// RegisterServiceUseCase loads a service schema, resolves its method plans,
// derives the OpenAPI document and stores the result. Every failure here
// aborts startup.
type RegisterServiceUseCase struct {
	source     SchemaSource
	resolver   PlanResolver
	generator  DocumentGenerator
	repository PlanRepository
	logger     *slog.Logger
}

// NewRegisterServiceUseCase creates a new RegisterServiceUseCase.
func NewRegisterServiceUseCase(
	source SchemaSource,
	resolver PlanResolver,
	generator DocumentGenerator,
	repository PlanRepository,
	logger *slog.Logger,
) *RegisterServiceUseCase {
	return &RegisterServiceUseCase{
		source:     source,
		resolver:   resolver,
		generator:  generator,
		repository: repository,
		logger:     logger.With("usecase", "RegisterService"),
	}
}

// Execute registers serviceName with plans resolved from entries.
func (uc *RegisterServiceUseCase) Execute(ctx context.Context, serviceName string, entries []domain.ConfigEntry) (*Registration, error) {
	log := uc.logger.With(slog.String("service", serviceName))
	log.Info("Starting service registration", slog.Int("config_entries", len(entries)))

	service, err := uc.load(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	plans, err := uc.resolver.Resolve(service.Methods, entries)
	if err != nil {
		log.Error("Failed to resolve method configuration", slog.Any("error", err))
		return nil, fmt.Errorf("failed to resolve method configuration for %s: %w", serviceName, err)
	}
	return uc.register(ctx, log, service, plans)
}

// ExecuteWithPlans registers serviceName with plans recovered elsewhere, for
// example from a previously generated document. The plans go through the same
// checks as resolved plans before the document is generated.
func (uc *RegisterServiceUseCase) ExecuteWithPlans(ctx context.Context, serviceName string, plans []domain.MethodPlan) (*Registration, error) {
	log := uc.logger.With(slog.String("service", serviceName))
	log.Info("Starting service registration from existing plans", slog.Int("plans", len(plans)))

	service, err := uc.load(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	if err := uc.resolver.Validate(service.Methods, plans); err != nil {
		log.Error("Recovered method plans are invalid", slog.Any("error", err))
		return nil, fmt.Errorf("invalid method plans for %s: %w", serviceName, err)
	}
	return uc.register(ctx, log, service, plans)
}

func (uc *RegisterServiceUseCase) load(ctx context.Context, serviceName string) (domain.ServiceSchema, error) {
	service, err := uc.source.Service(ctx, serviceName)
	if err != nil {
		uc.logger.Error("Failed to load service schema", slog.String("service", serviceName), slog.Any("error", err))
		return domain.ServiceSchema{}, fmt.Errorf("failed to load schema of service %s: %w", serviceName, err)
	}
	uc.logger.Info("Service schema loaded", slog.String("service", service.Name), slog.Int("methods", len(service.Methods)))
	return service, nil
}

func (uc *RegisterServiceUseCase) register(ctx context.Context, log *slog.Logger, service domain.ServiceSchema, plans []domain.MethodPlan) (*Registration, error) {
	doc, err := uc.generator.Generate(ctx, service, plans)
	if err != nil {
		log.Error("Failed to generate OpenAPI document", slog.Any("error", err))
		return nil, fmt.Errorf("failed to generate OpenAPI document for %s: %w", service.Name, err)
	}

	reg := &Registration{Service: service, Plans: plans, Document: doc}
	if err := uc.repository.Save(ctx, reg); err != nil {
		log.Error("Failed to save registration", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save registration of %s: %w", service.Name, err)
	}
	for _, p := range plans {
		log.Debug("Registered method", slog.String("method", p.Method),
			slog.String("http_method", p.HTTPMethod), slog.String("path", p.Path))
	}
	log.Info("Successfully registered service", slog.Int("methods", len(plans)))
	return reg, nil
}
