package memrepo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/usecase"
)

// InMemoryPlanRepository provides an in-memory implementation of the PlanRepository.
// NOTE: This implementation is not persistent and data will be lost on restart.
type InMemoryPlanRepository struct {
	mu      sync.RWMutex
	reg     *usecase.Registration
	methods map[string]int // Map method name to its index in reg.Plans
	logger  *slog.Logger
}

// NewInMemoryPlanRepository creates a new in-memory repository.
func NewInMemoryPlanRepository(logger *slog.Logger) *InMemoryPlanRepository {
	return &InMemoryPlanRepository{
		methods: make(map[string]int),
		logger:  logger.With("component", "mem_repo"),
	}
}

// Save replaces the stored registration. Every plan must belong to a method
// of the registered service.
func (r *InMemoryPlanRepository) Save(ctx context.Context, reg *usecase.Registration) error {
	if reg == nil {
		return fmt.Errorf("save failed: nil registration")
	}
	methods := make(map[string]int, len(reg.Plans))
	for i, p := range reg.Plans {
		if _, ok := reg.Service.Method(p.Method); !ok {
			r.logger.Error("Failed to save registration", slog.String("method", p.Method))
			return fmt.Errorf("save failed: plan for unknown method %s", p.Method)
		}
		if _, dup := methods[p.Method]; dup {
			return fmt.Errorf("save failed: duplicate plan for method %s", p.Method)
		}
		methods[p.Method] = i
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reg = reg
	r.methods = methods
	r.logger.Info("Saved registration", slog.String("service", reg.Service.Name), slog.Int("count", len(methods)))
	return nil
}

// Load returns the stored registration.
func (r *InMemoryPlanRepository) Load(ctx context.Context) (*usecase.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.reg == nil {
		return nil, fmt.Errorf("%w: no service registered", domain.ErrMethodNotFound)
	}
	return r.reg, nil
}

// FindMethod retrieves the plan and schema of a method by its name.
func (r *InMemoryPlanRepository) FindMethod(ctx context.Context, name string) (domain.MethodPlan, domain.MethodSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.methods[name]
	if !ok {
		r.logger.Warn("Method not found", slog.String("method", name))
		return domain.MethodPlan{}, domain.MethodSchema{}, fmt.Errorf("%w: %s", domain.ErrMethodNotFound, name)
	}
	plan := r.reg.Plans[i]
	method, _ := r.reg.Service.Method(name)
	r.logger.Debug("Found method", slog.String("method", name))
	return plan, method, nil
}

// InMemoryHandlerRegistry provides an in-memory implementation of the HandlerRegistry.
type InMemoryHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]usecase.Handler
	logger   *slog.Logger
}

// NewInMemoryHandlerRegistry creates an empty registry.
func NewInMemoryHandlerRegistry(logger *slog.Logger) *InMemoryHandlerRegistry {
	return &InMemoryHandlerRegistry{
		handlers: make(map[string]usecase.Handler),
		logger:   logger.With("component", "handler_registry"),
	}
}

// Register adds a handler for method. Registering a method twice is an error.
func (r *InMemoryHandlerRegistry) Register(method string, handler usecase.Handler) error {
	if method == "" || handler == nil {
		return fmt.Errorf("register failed: method name and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[method]; ok {
		return fmt.Errorf("register failed: method %s already has a handler", method)
	}
	r.handlers[method] = handler
	r.logger.Info("Registered handler", slog.String("method", method))
	return nil
}

// Lookup returns the handler of method.
func (r *InMemoryHandlerRegistry) Lookup(method string) (usecase.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[method]
	return h, ok
}
