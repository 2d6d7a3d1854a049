package usecase

import (
	"context"
	"fmt"
	"log/slog"
)

// ServeMethodsUseCase provides the registered service to the inbound surfaces.
type ServeMethodsUseCase struct {
	repository PlanRepository
	logger     *slog.Logger
}

// NewServeMethodsUseCase creates a new ServeMethodsUseCase.
func NewServeMethodsUseCase(repository PlanRepository, logger *slog.Logger) *ServeMethodsUseCase {
	return &ServeMethodsUseCase{
		repository: repository,
		logger:     logger.With("usecase", "ServeMethods"),
	}
}

// Execute returns the current registration.
func (uc *ServeMethodsUseCase) Execute(ctx context.Context) (*Registration, error) {
	uc.logger.Debug("Listing methods")
	reg, err := uc.repository.Load(ctx)
	if err != nil {
		uc.logger.Error("Failed to load registration from repository", slog.Any("error", err))
		return nil, fmt.Errorf("failed to load registration from repository: %w", err)
	}
	uc.logger.Debug("Successfully listed methods", slog.Int("count", len(reg.Plans)))
	return reg, nil
}
