package usecase

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/protoswag/internal/domain"
)

// --- Schema Source Related ---

// SchemaSource loads the description of one RPC service, from .proto files or
// from a running server.
type SchemaSource interface {
	Service(ctx context.Context, name string) (domain.ServiceSchema, error)
}

// PlanResolver turns configuration entries into one plan per method and
// checks plans which did not come from configuration entries.
type PlanResolver interface {
	Resolve(methods []domain.MethodSchema, entries []domain.ConfigEntry) ([]domain.MethodPlan, error)
	Validate(methods []domain.MethodSchema, plans []domain.MethodPlan) error
}

// DocumentGenerator derives and validates the OpenAPI document for a set of plans.
type DocumentGenerator interface {
	Generate(ctx context.Context, service domain.ServiceSchema, plans []domain.MethodPlan) (*openapi3.T, error)
}

// --- Registration Related ---

// Registration is everything known about a registered service once startup
// validation passed. It is read-only afterwards.
type Registration struct {
	Service  domain.ServiceSchema
	Plans    []domain.MethodPlan
	Document *openapi3.T
}

// Plan returns the plan and schema of the named method.
func (r *Registration) Plan(method string) (domain.MethodPlan, domain.MethodSchema, bool) {
	for _, p := range r.Plans {
		if p.Method == method {
			m, ok := r.Service.Method(method)
			return p, m, ok
		}
	}
	return domain.MethodPlan{}, domain.MethodSchema{}, false
}

// PlanRepository stores the registered service.
type PlanRepository interface {
	// Save replaces the current registration.
	Save(ctx context.Context, reg *Registration) error

	// Load returns the current registration, or domain.ErrMethodNotFound when
	// nothing was registered.
	Load(ctx context.Context) (*Registration, error)

	// FindMethod returns the plan and schema of one method, or an error
	// wrapping domain.ErrMethodNotFound.
	FindMethod(ctx context.Context, name string) (domain.MethodPlan, domain.MethodSchema, error)
}

// --- Invocation Related ---

// ParamSource yields the raw values the caller sent for a parameter. ok is
// false when the parameter is absent; a present parameter may carry several
// values for repeated fields.
type ParamSource interface {
	Lookup(spec domain.ParamSpec) (values []string, ok bool)
}

// ParamValues is a ParamSource keyed by parameter name.
type ParamValues map[string][]string

// Lookup implements ParamSource.
func (v ParamValues) Lookup(spec domain.ParamSpec) ([]string, bool) {
	values, ok := v[spec.Name]
	return values, ok
}

// Handler serves one method locally, from serialized request to serialized
// response.
type Handler func(ctx context.Context, request []byte) ([]byte, error)

// HandlerRegistry maps method names to local handlers. Handlers are
// registered before serving starts.
type HandlerRegistry interface {
	Register(method string, handler Handler) error
	Lookup(method string) (Handler, bool)
}

// Dispatcher hands a serialized request to whatever serves the method and
// returns the serialized response.
type Dispatcher interface {
	Dispatch(ctx context.Context, method domain.MethodSchema, request []byte) ([]byte, error)
}
